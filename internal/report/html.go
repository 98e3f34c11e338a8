package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"

	"statpipe/internal/model"
)

var htmlFuncs = template.FuncMap{
	"f2":      func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f4":      func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"bestFit": func(d *Document) *model.Fitted { return d.BestFit() },
	"median": func(v float64) string {
		if math.IsNaN(v) {
			return "not reached"
		}
		return fmt.Sprintf("%.1f", v)
	},
}

var htmlTemplate = template.Must(template.New("report").Funcs(htmlFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; margin: 2rem auto; max-width: 60rem; color: #222; }
h1 { border-bottom: 2px solid #444; padding-bottom: 0.3rem; }
h2 { margin-top: 2rem; }
table { border-collapse: collapse; margin: 0.8rem 0; }
th, td { border: 1px solid #bbb; padding: 0.3rem 0.6rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
thead { background: #f0f0f0; }
.meta { color: #666; font-size: 0.9rem; }
.failed { color: #a00; }
.best { font-weight: bold; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">run {{.RunID}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}<br>
dataset {{.Dataset}}: {{.Rows}} rows, {{.Columns}} columns</p>

{{if .Audits}}
<h2>Cleaning audit</h2>
<table><thead><tr><th>step</th><th>before</th><th>after</th></tr></thead><tbody>
{{range .Audits}}<tr><td>{{.Step}}</td><td>{{.Before}}</td><td>{{.After}}</td></tr>
{{end}}</tbody></table>
{{end}}

{{if .Missingness}}
<h2>Missingness</h2>
<table><thead><tr><th>column</th><th>type</th><th>missing</th><th>total</th><th>%</th></tr></thead><tbody>
{{range .Missingness}}<tr><td>{{.Column}}</td><td>{{.Type}}</td><td>{{.Missing}}</td><td>{{.Total}}</td><td>{{f2 .Percent}}</td></tr>
{{end}}</tbody></table>
{{end}}

{{if .Describe}}
<h2>Descriptive statistics</h2>
<table><thead><tr><th>column</th><th>n</th><th>mean</th><th>sd</th><th>min</th><th>q1</th><th>median</th><th>q3</th><th>max</th></tr></thead><tbody>
{{range .Describe}}<tr><td>{{.Column}}</td><td>{{.N}}</td><td>{{f2 .Mean}}</td><td>{{f2 .SD}}</td><td>{{f2 .Min}}</td><td>{{f2 .Q1}}</td><td>{{f2 .Median}}</td><td>{{f2 .Q3}}</td><td>{{f2 .Max}}</td></tr>
{{end}}</tbody></table>
{{end}}

{{with .Spearman}}
<h2>Spearman correlations</h2>
<table><thead><tr><th></th>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead><tbody>
{{$m := .}}{{range $i, $name := .Columns}}<tr><td>{{$name}}</td>{{range $j, $_ := $m.Columns}}<td>{{f2 (index $m.Values $i $j)}}</td>{{end}}</tr>
{{end}}</tbody></table>
{{end}}

{{if .VIF}}
<h2>Variance inflation</h2>
<table><thead><tr><th>column</th><th>VIF</th><th>flagged</th></tr></thead><tbody>
{{range .VIF}}<tr><td>{{.Column}}</td><td>{{f2 .VIF}}</td><td>{{.Flagged}}</td></tr>
{{end}}</tbody></table>
{{end}}

{{if .Comparison}}
<h2>Model comparison</h2>
<table><thead><tr><th>model</th><th>formula</th><th>df</th><th>logLik</th><th>AIC</th><th>BIC</th><th>statistic</th></tr></thead><tbody>
{{$best := .Comparison.Best}}
{{range .Comparison.Rows}}
{{if .Err}}<tr class="failed"><td>{{.Name}}</td><td>{{.Formula}}</td><td colspan="5">failed: {{.Err}}</td></tr>
{{else}}<tr{{if eq .Name $best}} class="best"{{end}}><td>{{.Name}}</td><td>{{.Formula}}</td><td>{{.Params}}</td><td>{{f2 .LogLik}}</td><td>{{f2 .AIC}}</td><td>{{f2 .BIC}}</td><td>{{.Statistic}}={{f4 .Value}}</td></tr>
{{end}}{{end}}</tbody></table>

{{range .Comparison.LRTests}}<p>LR test {{.Restricted}} vs {{.Full}}: &chi;&sup2;={{f2 .Chi2}}, df={{.DF}}, p={{f4 .P}}</p>
{{end}}
{{range .Comparison.VuongTests}}<p>Vuong test {{.ModelA}} vs {{.ModelB}}: z={{f2 .Z}}, p={{f4 .P}}{{if .Preferred}} &mdash; prefers {{.Preferred}}{{end}}</p>
{{end}}

{{with bestFit .}}
<h2>Coefficients ({{$best}})</h2>
<table><thead><tr><th>term</th><th>estimate</th><th>std err</th><th>lower</th><th>upper</th><th>p</th></tr></thead><tbody>
{{range .Coefficients}}<tr><td>{{.Name}}</td><td>{{f4 .Estimate}}</td><td>{{f4 .StdErr}}</td><td>{{f4 .Lower}}</td><td>{{f4 .Upper}}</td><td>{{f4 .P}}</td></tr>
{{end}}</tbody></table>
{{end}}
{{end}}

{{if .Validations}}
<h2>Validation</h2>
<table><thead><tr><th>formula</th><th>procedure</th><th>statistic</th><th>apparent</th><th>corrected</th></tr></thead><tbody>
{{range .Validations}}
{{if .Bootstrap}}<tr><td>{{.Formula}}</td><td>bootstrap ({{.Bootstrap.Replicates}})</td><td>{{.Bootstrap.Statistic}}</td><td>{{f4 .Bootstrap.Apparent}}</td><td>{{f4 .Bootstrap.Corrected}}</td></tr>{{end}}
{{if .Holdout}}<tr><td>{{.Formula}}</td><td>holdout (n={{.Holdout.TestN}})</td><td>{{.Holdout.Statistic}}</td><td>{{f4 .Holdout.Train}}</td><td>{{f4 .Holdout.Test}}</td></tr>{{end}}
{{end}}</tbody></table>
{{end}}

{{if .Survival}}
<h2>Kaplan-Meier</h2>
<table><thead><tr><th>stratum</th><th>n</th><th>events</th><th>median</th></tr></thead><tbody>
{{range .Survival.Strata}}<tr><td>{{.Label}}</td><td>{{.N}}</td><td>{{.Events}}</td><td>{{median .MedianTime}}</td></tr>
{{end}}</tbody></table>
{{if gt .Survival.LogRankDF 0}}<p>log-rank: &chi;&sup2;={{f2 .Survival.LogRankChi2}}, df={{.Survival.LogRankDF}}, p={{f4 .Survival.LogRankP}}</p>{{end}}
{{end}}

</body>
</html>
`))

// RenderHTML renders the document as a standalone HTML page.
func RenderHTML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}
