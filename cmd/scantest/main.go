// Command scantest runs document detection on a photo and reports results.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc-scanner/internal/detect"
	"doc-scanner/internal/frame"
	"doc-scanner/internal/overlay"
	"doc-scanner/internal/rectify"
	"doc-scanner/internal/version"

	"gocv.io/x/gocv"
)

func main() {
	imagePath := flag.String("image", "", "Path to document photo (PNG, JPEG, TIFF, or BMP)")
	output := flag.String("output", "", "Write the rectified page to this path")
	overlayPath := flag.String("overlay", "", "Write a debug overlay image to this path")
	masksDir := flag.String("masks", "", "Dump per-strategy masks into this directory")
	maxDim := flag.Int("maxdim", 640, "Working raster long edge")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *imagePath == "" {
		fmt.Println("Usage: scantest -image <path> [-output page.png] [-overlay debug.png] [-masks dir]")
		os.Exit(1)
	}

	// Load image
	f, err := frame.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Loaded image: %dx%d pixels\n", f.Width(), f.Height())

	working, err := f.Downscale(*maxDim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Downscale failed: %v\n", err)
		os.Exit(1)
	}
	defer working.Close()
	fmt.Printf("Working raster: %dx%d (scale %.3f)\n", working.Width(), working.Height(), working.Scale())

	params := detect.DefaultParams()
	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Blur kernel: %dx%d\n", params.BlurKernel, params.BlurKernel)
	fmt.Printf("  Canny pairs:")
	for _, p := range params.CannyPairs {
		fmt.Printf(" (%.0f,%.0f)", p.Low, p.High)
	}
	fmt.Println()
	fmt.Printf("  Adaptive blocks:")
	for _, a := range params.AdaptiveSettings {
		fmt.Printf(" %d/C%.0f", a.Block, a.C)
	}
	fmt.Println()
	fmt.Printf("  Area gate: %.0f%% of frame\n", params.MinAreaRatio*100)
	fmt.Printf("  Epsilon ladder:")
	for _, e := range params.EpsilonLadder {
		fmt.Printf(" %.0f%%", e*100)
	}
	fmt.Println()
	fmt.Printf("  Angle bounds: %.0f-%.0f deg\n", params.AngleMin, params.AngleMax)

	// Dump masks if requested
	if *masksDir != "" {
		masks, err := detect.Masks(working.Mat(), params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Mask generation failed: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(*masksDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Creating %s: %v\n", *masksDir, err)
			os.Exit(1)
		}
		for _, m := range masks {
			path := filepath.Join(*masksDir, m.Name+".png")
			if !gocv.IMWrite(path, m.Mat) {
				fmt.Fprintf(os.Stderr, "Failed to write %s\n", path)
			}
			m.Mat.Close()
		}
		fmt.Printf("\nWrote %d strategy masks to %s\n", len(masks), *masksDir)
	}

	// Run detection
	fmt.Printf("\nDetecting document...\n")
	result, err := detect.New(params).FindDocument(working.Mat())
	found := err == nil
	if err != nil && !errors.Is(err, detect.ErrNoDocument) {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nStrategies:\n")
	fmt.Printf("%-16s %10s %12s\n", "Strategy", "Candidates", "Elapsed")
	fmt.Println(strings.Repeat("-", 40))
	for _, s := range result.Strategies {
		fmt.Printf("%-16s %10d %12s\n", s.Name, s.Candidates, s.Elapsed.Round(time.Microsecond))
	}

	fmt.Printf("\n%d candidates:\n", len(result.Candidates))
	fmt.Printf("%-16s %10s %8s %8s %8s %8s %-10s\n",
		"Strategy", "Area", "Center", "Size", "Aspect", "Total", "Paper")
	fmt.Println(strings.Repeat("-", 74))
	for _, c := range result.Candidates {
		fmt.Printf("%-16s %10.0f %8.1f %8.1f %8.1f %8.1f %-10s\n",
			c.Strategy, c.Area, c.Score.Center, c.Score.Size, c.Score.Aspect, c.Score.Total(), c.Paper)
	}

	if *overlayPath != "" {
		canvas := overlay.Draw(working.Mat(), result, found, overlay.DefaultOptions())
		if !gocv.IMWrite(*overlayPath, canvas) {
			fmt.Fprintf(os.Stderr, "Failed to write %s\n", *overlayPath)
		} else {
			fmt.Printf("\nWrote overlay to %s\n", *overlayPath)
		}
		canvas.Close()
	}

	if !found {
		fmt.Println("\nNo document found")
		os.Exit(2)
	}

	best := result.Best
	quad := working.QuadToSource(best.Quad)
	fmt.Printf("\nBest candidate: %s (score %.1f, paper %s)\n", best.Strategy, best.Score.Total(), best.Paper)
	fmt.Printf("  TL (%8.1f, %8.1f)\n", quad.TopLeft.X, quad.TopLeft.Y)
	fmt.Printf("  TR (%8.1f, %8.1f)\n", quad.TopRight.X, quad.TopRight.Y)
	fmt.Printf("  BR (%8.1f, %8.1f)\n", quad.BottomRight.X, quad.BottomRight.Y)
	fmt.Printf("  BL (%8.1f, %8.1f)\n", quad.BottomLeft.X, quad.BottomLeft.Y)

	if *output != "" {
		page, err := rectify.Rectify(f.Mat(), quad, rectify.DefaultParams())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Rectification failed: %v\n", err)
			os.Exit(1)
		}
		defer page.Close()

		if !gocv.IMWrite(*output, page) {
			fmt.Fprintf(os.Stderr, "Failed to write %s\n", *output)
			os.Exit(1)
		}
		fmt.Printf("\nWrote %dx%d page to %s\n", page.Cols(), page.Rows(), *output)
	}
}
