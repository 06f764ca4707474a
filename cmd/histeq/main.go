package main

import (
	"os"
	"runtime"

	"histeq/internal/app"
	"histeq/internal/display"
	"histeq/internal/logger"
	"histeq/internal/opencv"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	application := app.New(app.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
		NewLoader: func(log logger.Logger) app.ImageLoader {
			return opencv.NewLoader(log)
		},
		NewViewer: func(log logger.Logger) app.Viewer {
			return display.NewViewer(log)
		},
	})

	// Failures are reported on stderr; the exit status stays 0.
	_ = application.Run(os.Args[1:])
}
