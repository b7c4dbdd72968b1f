package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/geomeasure/internal/httputil"
	"github.com/banshee-data/geomeasure/internal/measure"
)

// profileSeries splits heights by source so gaps show where the other source
// was active. Index i on the x axis is the i-th captured point.
func profileSeries(points []measure.Point) (x []int, gps, imu []opts.LineData) {
	x = make([]int, len(points))
	gps = make([]opts.LineData, len(points))
	imu = make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = i + 1
		d := opts.LineData{Value: p.Height, Name: p.ID}
		if p.Mode == measure.Inertial {
			imu[i] = d
			gps[i] = opts.LineData{Value: "-"}
		} else {
			gps[i] = d
			imu[i] = opts.LineData{Value: "-"}
		}
	}
	return x, gps, imu
}

// heightProfile renders orthometric height against capture order.
func (s *Server) heightProfile(w http.ResponseWriter, r *http.Request) {
	points := s.ctrl.Points()
	x, gps, imu := profileSeries(points)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Height profile", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Height profile", Subtitle: fmt.Sprintf("points=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "capture", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "height (m)", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("gps", gps, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)})).
		AddSeries("imu", imu, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
