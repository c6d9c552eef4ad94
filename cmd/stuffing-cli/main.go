package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stuffinglist/domain"
	"stuffinglist/obs"
	"stuffinglist/stuffing"
)

func main() {
	_ = godotenv.Load()
	shutdownObs, _ := obs.Init("stuffing-cli", obs.WithLogWriter(os.Stderr))
	os.Exit(execute(newRootCommand(os.Stdout), shutdownObs))
}

// execute runs the command and flushes telemetry before the exit code is returned.
func execute(root *cobra.Command, shutdown obs.Shutdown) int {
	err := root.ExecuteContext(context.Background())
	if shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = shutdown(ctx)
		cancel()
	}
	if err != nil {
		return 1
	}
	return 0
}

type importFlags struct {
	si       string
	index    string
	formPath string
	out      string
	formOut  string
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "stuffing-cli",
		Short:        "Build stuffing lists from SI and index workbooks without the web service",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.AddCommand(newImportCommand(), newCUFTCommand())
	return root
}

func newImportCommand() *cobra.Command {
	var f importFlags
	c := &cobra.Command{
		Use:   "import",
		Short: "Import an SI and/or index workbook and write the stuffing list xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, f)
		},
	}
	c.Flags().StringVar(&f.si, "si", "", "SI workbook (.xlsx)")
	c.Flags().StringVar(&f.index, "index", "", "index workbook (.xlsx)")
	c.Flags().StringVar(&f.formPath, "form", "", "start from this form JSON instead of the default form")
	c.Flags().StringVar(&f.out, "out", stuffing.ExportFileName, "output xlsx path")
	c.Flags().StringVar(&f.formOut, "form-out", "", "also write the resulting form as JSON")
	return c
}

func newCUFTCommand() *cobra.Command {
	var formPath string
	c := &cobra.Command{
		Use:   "cuft",
		Short: "Print the estimated container volume of a form JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := loadForm(formPath)
			if err != nil {
				return err
			}
			msg, _ := stuffing.CUFTReport(form.Items)
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	c.Flags().StringVar(&formPath, "form", "", "form JSON (default form when empty)")
	return c
}

func loadForm(path string) (*domain.ShipmentForm, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.NewSeedForm(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取表单文件失败: %w", err)
	}
	var form domain.ShipmentForm
	if err := json.Unmarshal(b, &form); err != nil {
		return nil, fmt.Errorf("解析表单文件失败: %w", err)
	}
	return &form, nil
}

func runImport(cmd *cobra.Command, f importFlags) error {
	if strings.TrimSpace(f.si) == "" && strings.TrimSpace(f.index) == "" {
		return stuffing.ErrNoInput
	}
	form, err := loadForm(f.formPath)
	if err != nil {
		return err
	}

	var siR, indexR io.Reader
	if f.si != "" {
		fh, err := os.Open(f.si)
		if err != nil {
			return err
		}
		defer fh.Close()
		siR = fh
	}
	if f.index != "" {
		fh, err := os.Open(f.index)
		if err != nil {
			return err
		}
		defer fh.Close()
		indexR = fh
	}

	res, err := stuffing.RunAutomation(cmd.Context(), form, siR, indexR)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, n := range res.Notices() {
		fmt.Fprintln(out, n)
	}
	if res.SIErr != nil {
		fmt.Fprintf(out, "  si: %v\n", res.SIErr)
	}
	if res.IndexErr != nil {
		fmt.Fprintf(out, "  index: %v\n", res.IndexErr)
	}
	fmt.Fprintf(out, "items=%d matched=%d unmatched=%d\n", len(res.Form.Items), res.Reconciliation.Matched, res.Reconciliation.Unmatched)

	if err := stuffing.ExportStuffingListFile(res.Form, f.out); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", f.out)

	if f.formOut != "" {
		b, err := json.MarshalIndent(res.Form, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.formOut, b, 0o644); err != nil {
			return fmt.Errorf("写入表单文件失败: %w", err)
		}
	}

	msg, _ := stuffing.CUFTReport(res.Form.Items)
	fmt.Fprintln(out, msg)
	if len(res.Notices()) > 0 {
		return errors.New("部分文件处理失败")
	}
	return nil
}
