package synthetic

import (
	"fmt"
	"math"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// SeriesHours is the fixed length of a telemetry window: 7 days of hourly
// points.
const SeriesHours = 7 * 24

const labelLayout = "2006-01-02T15:04"

// Clamp ranges per variable, in physical units.
const (
	tempMin, tempMax           = -15.0, 32.0
	humidityMin, humidityMax   = 28.0, 99.0
	cloudMin, cloudMax         = 5.0, 100.0
	soilTempMin, soilTempMax   = -4.0, 24.0
	soilMoistMin, soilMoistMax = 15.0, 95.0
)

// SynthesizeTelemetry produces a one-week hourly series for the cell. The
// seed folds in only the calendar date of start (UTC), never the time of
// day: two requests on the same day must produce identical series, and the
// labels are anchored at midnight for the same reason.
func SynthesizeTelemetry(cellID string, year int, start time.Time) models.TelemetrySeries {
	day := start.UTC().Truncate(24 * time.Hour)
	next := NewGenerator(DeriveSeed(fmt.Sprintf("%s-%d-%s", cellID, year, day.Format("2006-01-02"))))

	series := models.TelemetrySeries{
		Labels:          make([]string, 0, SeriesHours),
		Temperature:     make([]float64, 0, SeriesHours),
		Precipitation:   make([]float64, 0, SeriesHours),
		Humidity:        make([]float64, 0, SeriesHours),
		Cloudiness:      make([]float64, 0, SeriesHours),
		SoilMoisture:    make([]float64, 0, SeriesHours),
		SoilTemperature: make([]float64, 0, SeriesHours),
	}

	for hour := 0; hour < SeriesHours; hour++ {
		ts := day.Add(time.Duration(hour) * time.Hour)

		// Daily cycle over the 24-hour phase, seasonal cycle over the
		// month-of-year phase. Noise rides on top of both.
		daily := math.Sin(2 * math.Pi * float64(ts.Hour()) / 24)
		seasonal := math.Sin(2 * math.Pi * float64(int(ts.Month())-1) / 12)

		temperature := 8 + seasonal*14 + daily*6 + uniform(next, -2, 2)
		humidity := 72 - daily*10 - seasonal*8 + uniform(next, -9, 9)
		cloud := 48 + seasonal*22 + uniform(next, -20, 20)
		soilTemp := 6 + seasonal*10 + daily*1.5 + uniform(next, -1.5, 1.5)
		soilMoist := 55 + seasonal*12 - daily*3 + uniform(next, -12, 12)

		// Thresholded precipitation: sparse rain events instead of a
		// continuous drizzle of noise.
		rainDraw := next()
		rain := 0.0
		switch {
		case rainDraw > 0.88:
			rain = uniform(next, 1.8, 8.0)
		case rainDraw > 0.75:
			rain = uniform(next, 0.1, 2.4)
		}

		series.Labels = append(series.Labels, ts.Format(labelLayout))
		series.Temperature = append(series.Temperature, round1(clamp(temperature, tempMin, tempMax)))
		series.Precipitation = append(series.Precipitation, round1(rain))
		series.Humidity = append(series.Humidity, round1(clamp(humidity, humidityMin, humidityMax)))
		series.Cloudiness = append(series.Cloudiness, round1(clamp(cloud, cloudMin, cloudMax)))
		series.SoilMoisture = append(series.SoilMoisture, round1(clamp(soilMoist, soilMoistMin, soilMoistMax)))
		series.SoilTemperature = append(series.SoilTemperature, round1(clamp(soilTemp, soilTempMin, soilTempMax)))
	}

	return series
}
