package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/format"
	"github.com/urfave/cli/v3"
)

var (
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of students to list",
		Value: 100,
	}

	studentsCmd = &cli.Command{
		Name:            "students",
		HideHelpCommand: true,
		Usage:           "Inspect stored students and their predictions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List students, newest first",
				Flags:  []cli.Flag{limitFlag},
				Action: cmdListStudents,
			},
			{
				Name:      "get",
				Usage:     "Show one student",
				ArgsUsage: "<id>",
				Action:    cmdGetStudent,
			},
			{
				Name:      "predictions",
				Usage:     "List the predictions of one student, newest first",
				ArgsUsage: "<id>",
				Action:    cmdStudentPredictions,
			},
			{
				Name:      "delete",
				Usage:     "Delete a student and its predictions",
				ArgsUsage: "<id>",
				Action:    cmdDeleteStudent,
			},
			{
				Name:   "summary",
				Usage:  "Count students by the tier of their latest prediction",
				Action: cmdSummary,
			},
		},
	}
)

func argID(cmd *cli.Command) (int64, error) {
	v := cmd.Args().First()
	if v == "" {
		return 0, errors.New("student id required")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid student id: %q", v)
	}
	return id, nil
}

func cmdListStudents(_ context.Context, cmd *cli.Command) error {
	list, err := data.ListStudents(getConfig(cmd).DB, cmd.Int(limitFlag.Name))
	if err != nil {
		return err
	}
	return encode(cmd, format.Students(list))
}

func cmdGetStudent(_ context.Context, cmd *cli.Command) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	st, err := data.GetStudent(getConfig(cmd).DB, id)
	if err != nil {
		return fmt.Errorf("student %d: %w", id, err)
	}
	return encode(cmd, format.Students{st})
}

func cmdStudentPredictions(_ context.Context, cmd *cli.Command) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	db := getConfig(cmd).DB
	if _, err := data.GetStudent(db, id); err != nil {
		return fmt.Errorf("student %d: %w", id, err)
	}
	list, err := data.ListPredictions(db, id)
	if err != nil {
		return err
	}
	return encode(cmd, format.Predictions(list))
}

func cmdDeleteStudent(_ context.Context, cmd *cli.Command) error {
	id, err := argID(cmd)
	if err != nil {
		return err
	}
	if err := data.DeleteStudent(getConfig(cmd).DB, id); err != nil {
		return fmt.Errorf("student %d: %w", id, err)
	}
	return encode(cmd, map[string]int64{"deleted": id})
}

func cmdSummary(_ context.Context, cmd *cli.Command) error {
	sum, err := data.GetSummary(getConfig(cmd).DB)
	if err != nil {
		return err
	}
	return encode(cmd, (*format.Summary)(sum))
}
