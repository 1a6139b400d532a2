// Package convert wraps the external binaries used to normalize documents
// and drive the printer. Every step is a single-input/single-output
// invocation; callers verify the expected output file exists afterwards,
// since a tool exiting zero without producing output counts as failure.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// Step is one input-path to output-path conversion.
type Step interface {
	Run(ctx context.Context, inputPath, outputPath string) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc func(ctx context.Context, inputPath, outputPath string) error

func (f StepFunc) Run(ctx context.Context, inputPath, outputPath string) error {
	return f(ctx, inputPath, outputPath)
}

// PageCounter reports how many pages a PDF holds.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return stdout.String(), fmt.Errorf("%s: %s", filepath.Base(name), diag)
	}
	return stdout.String(), nil
}

// ImageToPDF converts an image upload into a PDF (ImageMagick style:
// `magick <in> <out>`).
type ImageToPDF struct {
	ToolPath string
}

func (s *ImageToPDF) Run(ctx context.Context, inputPath, outputPath string) error {
	_, err := runCommand(ctx, s.ToolPath, inputPath, outputPath)
	return err
}

// DocToPDF converts doc/docx uploads via a headless office binary. The tool
// writes `<input-base>.pdf` into the output directory, so the result is
// renamed when the caller asked for a different name.
type DocToPDF struct {
	ToolPath string
	Rename   func(oldPath, newPath string) error
	Exists   func(path string) bool
}

func (s *DocToPDF) Run(ctx context.Context, inputPath, outputPath string) error {
	outDir := filepath.Dir(outputPath)
	if _, err := runCommand(ctx, s.ToolPath, "--headless", "--convert-to", "pdf", inputPath, "--outdir", outDir); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, base+".pdf")
	if s.Exists != nil && !s.Exists(produced) {
		return fmt.Errorf("%s: output file not created: %s", filepath.Base(s.ToolPath), produced)
	}
	if produced != outputPath && s.Rename != nil {
		if err := s.Rename(produced, outputPath); err != nil {
			return fmt.Errorf("rename converted document: %w", err)
		}
	}
	return nil
}

// PageExtractor produces a PDF holding only the requested page range
// (qpdf style: `qpdf <in> --pages . <range> -- <out>`).
type PageExtractor struct {
	ToolPath string
}

func (s *PageExtractor) Extract(ctx context.Context, inputPath, outputPath, pages string) error {
	_, err := runCommand(ctx, s.ToolPath, inputPath, "--pages", ".", pages, "--", outputPath)
	return err
}

// Grayscale converts a PDF to the DeviceGray color space (ghostscript).
type Grayscale struct {
	ToolPath string
}

func (s *Grayscale) Run(ctx context.Context, inputPath, outputPath string) error {
	_, err := runCommand(ctx, s.ToolPath,
		"-sDEVICE=pdfwrite",
		"-sColorConversionStrategy=Gray",
		"-dProcessColorModel=/DeviceGray",
		"-o", outputPath,
		inputPath,
	)
	return err
}

// PrintDispatcher sends one copy of a PDF to the configured printer.
type PrintDispatcher struct {
	ToolPath    string
	PrinterName string
}

func (s *PrintDispatcher) Print(ctx context.Context, path string, size models.PaperSize) error {
	paper := "paper=A4"
	if size == models.SizeA3 {
		paper = "paper=A3"
	}
	_, err := runCommand(ctx, s.ToolPath,
		"-print-to", s.PrinterName,
		"-print-settings", paper,
		path,
	)
	return err
}

// QpdfPageCounter answers "all pages" lookups via `qpdf --show-npages`.
type QpdfPageCounter struct {
	ToolPath string
}

func (s *QpdfPageCounter) PageCount(ctx context.Context, path string) (int, error) {
	out, err := runCommand(ctx, s.ToolPath, "--show-npages", path)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &n); err != nil {
		return 0, fmt.Errorf("parse page count %q: %w", strings.TrimSpace(out), err)
	}
	if n < 1 {
		return 0, fmt.Errorf("page count %d out of range", n)
	}
	return n, nil
}
