// Command gbcore is a headless DMG runner: it loads a ROM, steps a fixed
// number of frames, and optionally writes the resulting frame to a PNG and
// checks it against an expected CRC32, for scripted regression testing
// without a display.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"github.com/kelsonhall/dmgcore/internal/emu"
)

func main() {
	romPath := flag.String("rom", "", "path to a .gb ROM image (required)")
	frames := flag.Int("frames", 60, "number of frames to step before capturing output")
	outPNG := flag.String("out", "", "optional path to write the final frame as a PNG")
	wantCRC := flag.String("crc", "", "optional expected CRC32 (hex) of the final frame; mismatch exits non-zero")
	savePath := flag.String("save", "", "optional battery save file to load before running and write after")
	flag.Parse()

	if *romPath == "" {
		fmt.Fprintln(os.Stderr, "gbcore: -rom is required")
		flag.Usage()
		os.Exit(2)
	}

	m := emu.New(emu.Config{})
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}

	if *savePath != "" {
		if data, err := os.ReadFile(*savePath); err == nil {
			if err := m.ImportSave(data); err != nil {
				log.Fatalf("import save: %v", err)
			}
		}
	}

	for i := 0; i < *frames; i++ {
		m.StepFrame()
	}

	fb := m.Framebuffer()
	sum := crc32.ChecksumIEEE(fb)
	fmt.Printf("frame=%d crc32=%08x\n", *frames, sum)

	if *wantCRC != "" {
		var want uint32
		if _, err := fmt.Sscanf(*wantCRC, "%x", &want); err != nil {
			log.Fatalf("parse -crc: %v", err)
		}
		if want != sum {
			fmt.Fprintf(os.Stderr, "crc mismatch: got %08x want %08x\n", sum, want)
			os.Exit(1)
		}
	}

	if *outPNG != "" {
		if err := writePNG(*outPNG, fb, 160, 144); err != nil {
			log.Fatalf("write png: %v", err)
		}
	}

	if *savePath != "" {
		data, err := m.ExportSave()
		if err != nil {
			log.Fatalf("export save: %v", err)
		}
		if data != nil {
			if err := os.WriteFile(*savePath, data, 0o644); err != nil {
				log.Fatalf("write save: %v", err)
			}
		}
	}
}

func writePNG(path string, rgba []byte, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			img.SetRGBA(x, y, color.RGBA{rgba[i], rgba[i+1], rgba[i+2], rgba[i+3]})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
