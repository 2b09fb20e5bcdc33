package parse

import (
	"fmt"
	"io"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Returns the earliest and latest exception dates. A service may have
// at most one exception per date.
func ParseCalendarDates(writer storage.FeedWriter, data io.Reader) (string, string, error) {
	seen := map[[2]string]bool{}
	var span dateRange

	err := eachRow(data, func(_ int, cd *CalendarDateCSV) error {
		typ := model.ExceptionType(cd.ExceptionType)
		if typ != model.ExceptionTypeAdded && typ != model.ExceptionTypeRemoved {
			return fmt.Errorf("invalid exception_type %d", cd.ExceptionType)
		}
		if err := checkDate("date", cd.Date); err != nil {
			return err
		}

		key := [2]string{cd.ServiceID, cd.Date}
		if seen[key] {
			return fmt.Errorf("service '%s' has two exceptions on %s", cd.ServiceID, cd.Date)
		}
		seen[key] = true

		span.cover(cd.Date, cd.Date)
		return writer.WriteCalendarDate(model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: typ,
		})
	})
	if err != nil {
		return "", "", err
	}

	return span.start, span.end, nil
}
