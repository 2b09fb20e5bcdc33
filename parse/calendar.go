package parse

import (
	"fmt"
	"io"
	"time"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

const dateLayout = "20060102"

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

func checkDate(column, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("invalid %s '%s'", column, value)
	}
	return nil
}

func (c *CalendarCSV) weekdays() (model.WeekdaySet, error) {
	var set model.WeekdaySet
	flags := map[time.Weekday]int8{
		time.Monday:    c.Monday,
		time.Tuesday:   c.Tuesday,
		time.Wednesday: c.Wednesday,
		time.Thursday:  c.Thursday,
		time.Friday:    c.Friday,
		time.Saturday:  c.Saturday,
		time.Sunday:    c.Sunday,
	}
	for day, flag := range flags {
		switch flag {
		case 0:
		case 1:
			set = set.With(day)
		default:
			return 0, fmt.Errorf("invalid %s value %d", day, flag)
		}
	}
	return set, nil
}

// Returns the earliest start_date and latest end_date.
func ParseCalendar(writer storage.FeedWriter, data io.Reader) (string, string, error) {
	ids := idSet{}
	var span dateRange

	err := eachRow(data, func(_ int, c *CalendarCSV) error {
		if err := ids.claim("service_id", c.ServiceID); err != nil {
			return err
		}
		weekdays, err := c.weekdays()
		if err != nil {
			return fmt.Errorf("service '%s': %w", c.ServiceID, err)
		}
		if err := checkDate("start_date", c.StartDate); err != nil {
			return err
		}
		if err := checkDate("end_date", c.EndDate); err != nil {
			return err
		}

		span.cover(c.StartDate, c.EndDate)
		return writer.WriteCalendar(model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekdays,
		})
	})
	if err != nil {
		return "", "", err
	}

	return span.start, span.end, nil
}
