package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chop-dbhi/smart-framingham/facts"
	"github.com/chop-dbhi/smart-framingham/framingham"
	"github.com/chop-dbhi/smart-framingham/present"
)

type scoreOptions struct {
	sex      string
	age      int
	smoker   bool
	total    float64
	hdl      float64
	systolic float64
	treated  bool
	request  string
}

func scoreCmd() *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute a Framingham risk score from values or a CDS Hooks request",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *facts.Facts
			var err error
			if opts.request != "" {
				f, err = factsFromRequest(cmd.Context(), opts.request)
			} else {
				f, err = opts.facts()
			}
			if err != nil {
				return err
			}
			return printScore(cmd.OutOrStdout(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.sex, "sex", "", "male or female")
	flags.IntVar(&opts.age, "age", 0, "age in years")
	flags.BoolVar(&opts.smoker, "smoker", false, "current or former smoker")
	flags.Float64Var(&opts.total, "total", 0, "total cholesterol (mg/dL)")
	flags.Float64Var(&opts.hdl, "hdl", 0, "HDL cholesterol (mg/dL)")
	flags.Float64Var(&opts.systolic, "systolic", 0, "systolic blood pressure (mmHg)")
	flags.BoolVar(&opts.treated, "treated", false, "on blood pressure medication")
	flags.StringVar(&opts.request, "request", "", "CDS Hooks patient-view request JSON file; its prefetch is used")
	cmd.MarkFlagsMutuallyExclusive("request", "sex")

	return cmd
}

func (o *scoreOptions) facts() (*facts.Facts, error) {
	sex, err := framingham.ParseSex(o.sex)
	if err != nil {
		return nil, err
	}

	f := &facts.Facts{
		Sex:              sex,
		Age:              o.age,
		Smoker:           o.smoker,
		SmokingStatus:    "Never smoker",
		SystolicBP:       o.systolic,
		TotalCholesterol: o.total,
		HDLCholesterol:   o.hdl,
		Treated:          o.treated,
	}
	if o.smoker {
		f.SmokingStatus = "Smoker"
	}
	return f, nil
}

func factsFromRequest(ctx context.Context, fileName string) (*facts.Facts, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hookRequest, err := parseCDSHooksRequest(file)
	if err != nil {
		return nil, err
	}
	if hookRequest.HookInstance == "" {
		hookRequest.HookInstance = uuid.NewString()
	}
	if err := hookRequest.validate("patient-view"); err != nil {
		return nil, err
	}

	rr := newRiskRequest(ctx, hookRequest)
	f, err := facts.New(rr.Source, config.Codes, zapLogger).Extract(ctx, rr.PatientId)
	if err != nil {
		return nil, errors.New(present.Message(err, rr.PatientId))
	}
	return f, nil
}

func printScore(w io.Writer, f *facts.Facts) error {
	result, err := f.Score()
	if err != nil {
		return err
	}

	d := present.NewDisplay(f)
	if d.Name != "" {
		fmt.Fprintf(w, "Name:\t\t\t\t%s\n", d.Name)
	}
	fmt.Fprintf(w, "Gender:\t\t\t\t%s\n", d.Gender)
	fmt.Fprintf(w, "Age:\t\t\t\t%d\n", d.Age)
	fmt.Fprintf(w, "Smoking status:\t\t\t%s\n", d.SmokingStatus)
	fmt.Fprintf(w, "Systolic blood pressure:\t%s\n", d.Systolic)
	fmt.Fprintf(w, "Total Cholesterol:\t\t%s\n", d.TotalCholesterol)
	fmt.Fprintf(w, "HDL Cholesterol:\t\t%s\n", d.HDLCholesterol)
	fmt.Fprintf(w, "Blood pressure medications?\t%s\n", d.Treated)
	fmt.Fprintln(w, present.Summary(result))
	return nil
}
