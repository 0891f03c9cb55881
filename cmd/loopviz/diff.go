package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yousuf/loopviz/internal/trace"
)

var errTracesDiffer = errors.New("traces differ")

func (c *DiffCmd) Run(g *globals) error {
	expected, err := trace.LoadFromFile(c.Expected)
	if err != nil {
		return err
	}
	actual, err := trace.LoadFromFile(c.Actual)
	if err != nil {
		return err
	}
	return diffTraces(os.Stdout, expected.Steps, actual.Steps)
}

func diffTraces(w io.Writer, expected, actual []trace.Step) error {
	d := trace.Compare(expected, actual)
	if d == nil {
		fmt.Fprintln(w, successStyle.Render(trace.FormatDivergence(nil)))
		return nil
	}

	fmt.Fprint(w, warnStyle.Render(trace.FormatDivergence(d)))
	if d.Index < len(expected) {
		fmt.Fprintln(w, dimStyle.Render("  expected step: ")+expected[d.Index].String())
	}
	if d.Index < len(actual) {
		fmt.Fprintln(w, dimStyle.Render("  actual step:   ")+actual[d.Index].String())
	}
	return errTracesDiffer
}
