// Command redirects locates functions annotated with go:redirect-from
// directives and patches the redirect table of a kernel image with the
// addresses of the source and destination symbols.
package main

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/mod/modfile"
)

const redirectDirective = "//go:redirect-from"

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

// modulePath returns the module path declared in the go.mod file found in
// root.
func modulePath(root string) (string, error) {
	goModFile := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(goModFile)
	if err != nil {
		return "", err
	}

	module := modfile.ModulePath(data)
	if module == "" {
		return "", fmt.Errorf("%s: missing module directive", goModFile)
	}

	return module, nil
}

func collectGoFiles(root string) ([]string, error) {
	var goFiles []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go") {
			goFiles = append(goFiles, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return goFiles, nil
}

// findRedirects parses goFiles and returns the redirects they declare.
// File paths must be relative to the module root.
func findRedirects(module string, goFiles []string) ([]*redirect, error) {
	var redirects []*redirect

	for _, goFile := range goFiles {
		fset := token.NewFileSet()

		f, err := parser.ParseFile(fset, goFile, nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", goFile, err)
		}

		for _, decl := range f.Decls {
			fnDecl, ok := decl.(*ast.FuncDecl)
			if !ok || fnDecl.Doc == nil {
				continue
			}

			for _, comment := range fnDecl.Doc.List {
				if !strings.HasPrefix(comment.Text, redirectDirective) {
					continue
				}

				// build qualified name to fn
				fqName := fmt.Sprintf("%s/%s.%s",
					module,
					filepath.ToSlash(filepath.Dir(goFile)),
					fnDecl.Name,
				)

				fields := strings.Fields(comment.Text)
				if len(fields) != 2 || fields[0] != redirectDirective {
					return nil, fmt.Errorf("malformed go:redirect-from syntax for %q", fqName)
				}

				redirects = append(redirects, &redirect{
					src: fields[1],
					dst: fqName,
				})
			}
		}
	}

	return redirects, nil
}

func elfRedirectTableOffset(imgFile string) (uint64, error) {
	f, err := elf.Open(imgFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	redirectsSection := f.Section(".goredirectstbl")
	if redirectsSection == nil {
		return 0, fmt.Errorf("%s: missing .goredirectstbl section", imgFile)
	}

	return redirectsSection.Offset, nil
}

func elfWriteRedirectTable(redirects []*redirect, imgFile string) error {
	redirectTableOffset, err := elfRedirectTableOffset(imgFile)
	if err != nil {
		return err
	}

	// Open kernel image file and seek to table offset
	f, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Seek(int64(redirectTableOffset), io.SeekStart); err != nil {
		return err
	}

	for _, redirect := range redirects {
		if err = binary.Write(f, binary.LittleEndian, [2]uint64{redirect.srcVMA, redirect.dstVMA}); err != nil {
			return fmt.Errorf("writing redirect table entry: %w", err)
		}
	}

	return nil
}

func elfResolveRedirectSymbols(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	for _, redirect := range redirects {
		for _, symbol := range symbols {
			if symbol.Name == redirect.src {
				redirect.srcVMA = symbol.Value
			}
			if symbol.Name == redirect.dst {
				redirect.dstVMA = symbol.Value
			}
		}

		switch {
		case redirect.srcVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, redirect.src)
		case redirect.dstVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, redirect.dst)
		}
	}

	return nil
}

// loadRedirects collects the redirects declared by the kernel sources below
// root.
func loadRedirects(root string) ([]*redirect, error) {
	module, err := modulePath(root)
	if err != nil {
		return nil, fmt.Errorf("reading module path: %w", err)
	}

	prevDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err = os.Chdir(root); err != nil {
		return nil, err
	}
	defer os.Chdir(prevDir)

	if matches, _ := filepath.Glob("kernel/"); len(matches) != 1 {
		return nil, errors.New("kernel sources not found; use --root to point to the module root folder")
	}

	goFiles, err := collectGoFiles("kernel")
	if err != nil {
		return nil, fmt.Errorf("collecting kernel sources: %w", err)
	}

	return findRedirects(module, goFiles)
}

func main() {
	rootFlag := &cli.StringFlag{
		Name:  "root",
		Usage: "the module root folder",
		Value: ".",
	}

	app := cli.App{
		Name:  "redirects",
		Usage: "manage the kernel image redirect table",
		Flags: []cli.Flag{rootFlag},
		Commands: []*cli.Command{{
			Name:  "count",
			Usage: "print the number of redirect table entries",
			Action: func(ctx *cli.Context) error {
				redirects, err := loadRedirects(ctx.String("root"))
				if err != nil {
					return err
				}
				fmt.Printf("%d", len(redirects))
				return nil
			},
		}, {
			Name:      "populate-table",
			Usage:     "resolve redirect symbols and write the redirect table",
			ArgsUsage: "IMAGE",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return errors.New("populate-table requires the path to the kernel image as an argument")
				}

				imgFile, err := filepath.Abs(ctx.Args().First())
				if err != nil {
					return err
				}

				redirects, err := loadRedirects(ctx.String("root"))
				if err != nil {
					return err
				}

				if err = elfResolveRedirectSymbols(redirects, imgFile); err != nil {
					return err
				}

				return elfWriteRedirectTable(redirects, imgFile)
			},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[redirects] error: %s", err)
	}
}
