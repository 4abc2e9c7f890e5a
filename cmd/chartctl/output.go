package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"tschart/pkg/chart"
)

var printer = message.NewPrinter(language.English)

func writeJSON(w io.Writer, result chart.ChartResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// yamlDoc YAML 输出结构，时间戳转为 RFC3339
type yamlDoc struct {
	Series string      `yaml:"series"`
	Mode   string      `yaml:"mode"`
	Unit   string      `yaml:"unit,omitempty"`
	IsStep *bool       `yaml:"is_step,omitempty"`
	Points []yamlPoint `yaml:"points"`
}

type yamlPoint struct {
	Time  string      `yaml:"t"`
	Value interface{} `yaml:"v"`
}

func writeYAML(w io.Writer, result chart.ChartResult) error {
	doc := yamlDoc{
		Series: result.Timeseries.String(),
		Mode:   string(result.Metadata.DataFetchMode),
		Unit:   result.Metadata.Unit,
		IsStep: result.Metadata.IsStep,
		Points: make([]yamlPoint, 0, result.Data.Len()),
	}
	for i, x := range result.Data.X {
		p := yamlPoint{Time: time.UnixMilli(x).UTC().Format(time.RFC3339)}
		if y := result.Data.Y[i]; y.IsStr {
			p.Value = y.Str
		} else {
			p.Value = y.Num
		}
		doc.Points = append(doc.Points, p)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// writeTable 输出元数据摘要与逐点数据
func writeTable(w io.Writer, result chart.ChartResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	meta := result.Metadata
	fmt.Fprintf(tw, "series\t%s\n", result.Timeseries.String())
	fmt.Fprintf(tw, "mode\t%s\n", meta.DataFetchMode)
	fmt.Fprintf(tw, "points\t%s\n", printer.Sprintf("%d", result.Data.Len()))
	if meta.Unit != "" {
		fmt.Fprintf(tw, "unit\t%s\n", meta.Unit)
	}
	if meta.IsStep != nil {
		fmt.Fprintf(tw, "step\t%t\n", *meta.IsStep)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TIMESTAMP\tVALUE")
	for i, x := range result.Data.X {
		fmt.Fprintf(tw, "%s\t%s\n", time.UnixMilli(x).UTC().Format(time.RFC3339), result.Data.Y[i].String())
	}
	return tw.Flush()
}
