package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/siat-edu/siat/core/academics"
)

// syncProgress recomputes the progress of one student, or of every student when studentID is 0.
func (cli *commandLine) syncProgress(studentID int64) error {
	ctx := context.Background()
	sem, err := cli.acadSvc.CurrentSemester(ctx)
	if err != nil {
		return errors.Wrap(err, "resolving current semester")
	}
	if sem == nil {
		return academics.ErrNoCurrentSemester
	}

	start := time.Now()
	if studentID > 0 {
		if _, err = cli.acadSvc.GetStudent(ctx, academics.StudentFilter{ID: studentID}); err != nil {
			return err
		}
		res, err := cli.calculator.UpdateStudent(ctx, sem, studentID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "student %d (%s): %d created, %d updated\n", studentID, sem.Name, res.Created, res.Updated)
		for _, c := range res.Changes {
			fmt.Fprintf(cli.out, "  subject %d: %d -> %d\n", c.SubjectID, c.OldProgress, c.NewProgress)
		}
		return nil
	}

	stats, err := cli.calculator.UpdateAll(ctx, sem)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		cli.out, "%s: %d students, %d created, %d updated, %d errors (%s)\n",
		sem.Name, stats.TotalStudents, stats.EnrollmentsCreated, stats.EnrollmentsUpdated, stats.Errors,
		time.Since(start).Round(time.Millisecond),
	)
	return nil
}
