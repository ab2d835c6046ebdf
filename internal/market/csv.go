package market

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// LoadCSVHistory reads every *.csv file in dir into a MarketHistory. Files
// hold one bar per row with a header matching the Bar csv tags; rows are
// grouped by their symbol column, so one file may carry several symbols.
func LoadCSVHistory(dir string) (types.MarketHistory, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataNotFound, "failed to list csv files", err)
	}

	if len(files) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no csv files in %s", dir)
	}

	history := types.MarketHistory{}

	for _, file := range files {
		bars, err := readBars(file)
		if err != nil {
			return nil, err
		}

		for _, bar := range bars {
			history[bar.Symbol] = append(history[bar.Symbol], bar)
		}
	}

	for symbol := range history {
		bars := history[symbol]
		sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
		history[symbol] = bars
	}

	return history, nil
}

func readBars(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open %s", path)
	}
	defer f.Close()

	var bars []types.Bar
	if err := gocsv.UnmarshalFile(f, &bars); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to parse %s", path)
	}

	return bars, nil
}
