package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// Fake sdfile binary. Writes a small PNG to the -o path and prints a short
// progress transcript. Behavior switches:
//
//	FAKE_SD_FAIL=1       print diagnostics and exit 1 without output
//	FAKE_SD_NO_OUTPUT=1  exit 0 without writing the output file
func main() {
	var (
		model    string
		height   int
		width    int
		prompt   string
		steps    int
		cfgScale float64
		output   string
		negative string
		seed     int64
	)
	flag.StringVar(&model, "m", "", "model path")
	flag.IntVar(&height, "H", 0, "height")
	flag.IntVar(&width, "W", 0, "width")
	flag.StringVar(&prompt, "p", "", "prompt")
	flag.IntVar(&steps, "steps", 0, "steps")
	flag.Float64Var(&cfgScale, "cfg-scale", 0, "cfg scale")
	flag.StringVar(&output, "o", "", "output path")
	flag.StringVar(&negative, "n", "", "negative prompt")
	flag.Int64Var(&seed, "seed", -1, "seed")
	flag.Parse()

	fmt.Printf("loading model %s\n", model)
	fmt.Printf("sampling %dx%d steps=%d cfg=%.1f seed=%d\n", width, height, steps, cfgScale, seed)

	if os.Getenv("FAKE_SD_FAIL") == "1" {
		fmt.Println("CUDA error: out of memory")
		os.Exit(1)
	}
	if os.Getenv("FAKE_SD_NO_OUTPUT") == "1" {
		fmt.Println("done (but forgot the file)")
		return
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 37), G: uint8(y * 53), B: 128, A: 255})
		}
	}
	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	if err := png.Encode(f, img); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("image saved")
}
