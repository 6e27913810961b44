package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/format"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/mchmarny/dropscore/pkg/tabular"
	"github.com/urfave/cli/v3"
)

var (
	fileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "JSON record file (default: stdin)",
	}

	saveFlag = &cli.BoolFlag{
		Name:  "save",
		Usage: "Persist students and predictions to the database",
	}

	inputFlag = &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "CSV file with a header row",
		Required: true,
	}

	outputFlag = &cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "CSV file to write the scored rows to",
		Required: true,
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Concurrent scoring workers (default: config or CPU count)",
	}

	scoreCmd = &cli.Command{
		Name:            "score",
		HideHelpCommand: true,
		Usage:           "Score a single JSON record",
		Action:          cmdScore,
		Flags: []cli.Flag{
			fileFlag,
			saveFlag,
		},
	}

	batchCmd = &cli.Command{
		Name:            "batch",
		HideHelpCommand: true,
		Usage:           "Score every row of a CSV file",
		Action:          cmdBatch,
		Flags: []cli.Flag{
			inputFlag,
			outputFlag,
			saveFlag,
			workersFlag,
		},
	}
)

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	rec, err := readRecord(cmd.String(fileFlag.Name))
	if err != nil {
		return err
	}

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	res, err := eng.Score(ctx, rec)
	if err != nil {
		return fmt.Errorf("scoring record: %w", err)
	}

	if cmd.Bool(saveFlag.Name) {
		st := data.NewStudent(rec)
		if err := data.SaveScored(cfg.DB, []*data.Student{st}, []*score.Result{res}, cfg.modelRun()); err != nil {
			return fmt.Errorf("saving prediction: %w", err)
		}
		slog.Info("saved", "student", st.ID)
	}

	return encode(cmd, (*format.Response)(score.NewResponse(res)))
}

func readRecord(path string) (record.Raw, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	rec, err := record.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return rec, nil
}

func cmdBatch(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	in, err := os.Open(cmd.String(inputFlag.Name))
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	t, err := tabular.Read(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in.Name(), err)
	}

	eng, err := cfg.loadEngine()
	if err != nil {
		return err
	}

	workers := cfg.Config.Workers
	if cmd.IsSet(workersFlag.Name) {
		workers = cmd.Int(workersFlag.Name)
	}

	rows := t.Records()
	results, err := eng.ScoreBatch(ctx, rows, workers)
	if err != nil {
		return fmt.Errorf("scoring %s: %w", in.Name(), err)
	}

	if err := writeTable(cmd.String(outputFlag.Name), t, results); err != nil {
		return err
	}

	if cmd.Bool(saveFlag.Name) {
		students := make([]*data.Student, len(rows))
		for i, r := range rows {
			students[i] = data.NewStudent(r)
		}
		if err := data.SaveScored(cfg.DB, students, results, cfg.modelRun()); err != nil {
			return fmt.Errorf("saving batch: %w", err)
		}
	}

	slog.Info("batch scored",
		"rows", len(results),
		"output", cmd.String(outputFlag.Name),
		"saved", cmd.Bool(saveFlag.Name))

	return encode(cmd, format.TierCounts(score.Summarize(results)))
}

func writeTable(path string, t *tabular.Table, results []*score.Result) (retErr error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing output: %w", cerr)
		}
	}()

	if err := tabular.Write(out, t, results); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
