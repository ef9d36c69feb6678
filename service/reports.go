package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/reports"
	"github.com/Rafhael-Viana/geoproof/repository"
)

type ReportStore interface {
	Frequency(ctx context.Context, groupBy repository.FrequencyGroup, from, to time.Time, tz string) ([]repository.FrequencyRow, error)
}

type ReportService struct {
	attendance AttendanceStore
	reports    ReportStore
	loc        *time.Location
	now        func() time.Time
}

func NewReportService(attendance AttendanceStore, reports ReportStore, loc *time.Location) *ReportService {
	return &ReportService{attendance: attendance, reports: reports, loc: loc, now: time.Now}
}

// DailyQuery mirrors the report query string: filterBy=nama|tanggal picks
// one filter explicitly; without it name and dates cannot be combined.
type DailyQuery struct {
	FilterBy string
	Name     string
	Start    string
	End      string
}

type DailyReport struct {
	Mode       string              `json:"mode"`
	ReportDate string              `json:"reportDate"`
	Filters    map[string]string   `json:"filters"`
	Count      int                 `json:"count"`
	Data       []models.Attendance `json:"data"`
}

func (s *ReportService) dailyFilter(q DailyQuery) (models.AttendanceFilter, string, error) {
	f := models.AttendanceFilter{OldestFirst: true}
	name := strings.TrimSpace(q.Name)
	hasDate := strings.TrimSpace(q.Start) != "" || strings.TrimSpace(q.End) != ""

	mode := strings.TrimSpace(q.FilterBy)
	switch mode {
	case "nama":
		if name == "" {
			return f, "", invalid("nama", "is required for filterBy=nama")
		}
	case "tanggal":
		if !hasDate {
			return f, "", invalid("tanggalMulai", "tanggalMulai or tanggalSelesai is required for filterBy=tanggal")
		}
	case "":
		if name != "" && hasDate {
			return f, "", invalid("filterBy", "use filterBy=nama or filterBy=tanggal, filters are not combined")
		}
		switch {
		case name != "":
			mode = "nama"
		case hasDate:
			mode = "tanggal"
		default:
			mode = "none"
		}
	default:
		return f, "", invalid("filterBy", "must be nama or tanggal")
	}

	switch mode {
	case "nama":
		f.NameLike = name
	case "tanggal":
		// a single bound means that one day
		start, end := q.Start, q.End
		if strings.TrimSpace(start) == "" {
			start = end
		}
		if strings.TrimSpace(end) == "" {
			end = start
		}
		from, to, err := dayRange("tanggalMulai", start, "tanggalSelesai", end, s.loc)
		if err != nil {
			return f, "", err
		}
		f.From, f.To = from, to
	}
	return f, mode, nil
}

func (s *ReportService) Daily(ctx context.Context, q DailyQuery) (*DailyReport, error) {
	f, mode, err := s.dailyFilter(q)
	if err != nil {
		return nil, err
	}
	rows, _, err := s.attendance.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	return &DailyReport{
		Mode:       mode,
		ReportDate: s.now().In(s.loc).Format(dateLayout),
		Filters: map[string]string{
			"nama":           q.Name,
			"tanggalMulai":   q.Start,
			"tanggalSelesai": q.End,
		},
		Count: len(rows),
		Data:  rows,
	}, nil
}

// DailyExport renders the daily report as XLSX and suggests a file name.
func (s *ReportService) DailyExport(ctx context.Context, q DailyQuery) ([]byte, string, error) {
	rep, err := s.Daily(ctx, q)
	if err != nil {
		return nil, "", err
	}
	data, err := reports.DailyXLSX(rep.Data, s.loc)
	if err != nil {
		return nil, "", fmt.Errorf("export daily report: %w", err)
	}
	return data, fmt.Sprintf("attendance-%s.xlsx", rep.ReportDate), nil
}

type FrequencyReport struct {
	GroupBy string                    `json:"group_by"`
	From    string                    `json:"from"`
	To      string                    `json:"to"`
	Items   []repository.FrequencyRow `json:"items"`
}

// Frequency aggregates shifts per user or per day over [from, to] (inclusive dates).
func (s *ReportService) Frequency(ctx context.Context, groupBy, from, to string) (*FrequencyReport, error) {
	g := repository.FrequencyGroup(strings.TrimSpace(groupBy))
	if g == "" {
		g = repository.GroupByUser
	}
	if g != repository.GroupByUser && g != repository.GroupByDay {
		return nil, invalid("group_by", "must be user or day")
	}
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, invalid("", "from and to are required (YYYY-MM-DD)")
	}
	start, end, err := dayRange("from", from, "to", to, s.loc)
	if err != nil {
		return nil, err
	}

	items, err := s.reports.Frequency(ctx, g, *start, *end, s.loc.String())
	if err != nil {
		return nil, err
	}
	return &FrequencyReport{GroupBy: string(g), From: from, To: to, Items: items}, nil
}
