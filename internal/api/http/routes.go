package httpapi

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/climate-timeseries/internal/climate"
	"github.com/i474232898/climate-timeseries/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *climate.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/timeseries/filename", func(c *fiber.Ctx) error {
		p, err := parseParamsQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		name, err := service.Filename(p)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{"filename": name})
	})

	v1.Post("/timeseries/retrieve", func(c *fiber.Ctx) error {
		p, err := parseParamsBody(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var rec climate.Record
		if c.QueryBool("refresh") {
			rec, err = service.Refresh(c.UserContext(), p)
		} else {
			rec, err = service.Ensure(c.UserContext(), p)
		}
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(rec)
	})

	v1.Post("/timeseries/full-years", func(c *fiber.Ctx) error {
		p, err := parseParamsBody(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		series, err := service.FullYears(p)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{
			"years":  series.Years(),
			"count":  series.Len(),
			"series": series,
		})
	})

	v1.Get("/calendar/cumulative-days", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"cumulativeDays": climate.CumulativeDaysInMonths()})
	})

	v1.Get("/retrievals/latest", func(c *fiber.Ctx) error {
		var q pointQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.GetLatest(q.params())
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(rec)
	})

	v1.Get("/retrievals/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		p := req.Point.params()
		records, err := service.GetRange(p, req.From, req.To)
		if err != nil {
			return serviceError(err)
		}

		return c.JSON(fiber.Map{
			"key":     p.Key(),
			"from":    req.From,
			"to":      req.To,
			"records": records,
		})
	})
}

// serviceError maps service errors onto HTTP statuses.
func serviceError(err error) error {
	switch {
	case errors.Is(err, climate.ErrInvalidParams):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, climate.ErrRemoteRejection), errors.Is(err, climate.ErrInputShape):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, climate.ErrConnection):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func parseParamsBody(c *fiber.Ctx) (climate.Params, error) {
	var p climate.Params
	if err := c.BodyParser(&p); err != nil {
		return p, err
	}
	if err := validate.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}

func parseParamsQuery(c *fiber.Ctx) (climate.Params, error) {
	var q pointQuery
	if err := q.bind(c); err != nil {
		return climate.Params{}, err
	}
	p := q.params()
	p.DateRange = climate.DateRange{Start: c.Query("start"), End: c.Query("end")}
	if err := validate.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}

// pointQuery identifies a variable at a location.
type pointQuery struct {
	Variable  string `validate:"required"`
	Latitude  float64
	Longitude float64
}

func (q pointQuery) params() climate.Params {
	return climate.Params{
		Variable:  q.Variable,
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
	}
}

func (q *pointQuery) bind(c *fiber.Ctx) error {
	q.Variable = c.Query("variable")

	var err error
	if q.Latitude, err = parseCoord(c.Query("lat"), "lat"); err != nil {
		return err
	}
	if q.Longitude, err = parseCoord(c.Query("lng"), "lng"); err != nil {
		return err
	}
	return validate.Struct(q)
}

func parseCoord(s, name string) (float64, error) {
	if s == "" {
		return 0, errors.New(name + " query parameter is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + err.Error())
	}
	return v, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Point pointQuery
	From  time.Time `validate:"required"`
	To    time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	if err := h.Point.bind(c); err != nil {
		return err
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
