package server

import (
	"net/http"
	"time"

	"github.com/berfenger/wallbox2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type SolarData struct {
	TripowerPower        int                  `json:"tripower_power"`
	TripowerStr1Power    int                  `json:"tripower_str1_power"`
	TripowerStr2Power    int                  `json:"tripower_str2_power"`
	TripowerStr3Power    int                  `json:"tripower_str3_power"`
	BatteryPower         int                  `json:"battery_power"`
	BatterySoC           int                  `json:"battery_SoC"`
	GridPower            int                  `json:"grid_power"`
	EmeterPower          int                  `json:"emeter_power"`
	Consumption          int                  `json:"consumption"`
	ChargingState        int                  `json:"charging_state"`
	ChargingStateText    string               `json:"charging_state_text"`
	ChargingCurrentLimit int                  `json:"charging_current_limit"`
	SolarOnlyCharging    bool                 `json:"solar_only_charging"`
	UpdatedAt            map[string]time.Time `json:"updated_at"`
}

type ChargeControlState struct {
	SolarOnlyCharging bool                            `json:"solar_only_charging"`
	Changed           *bool                           `json:"changed,omitempty"`
	LastResult        *domain.ChargeControlTickResult `json:"last_result,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	if len(s.corsOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
		}))
	}

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/solar-data", s.SolarDataHandler)
	e.GET("/solar-only-charging", s.GetSolarOnlyChargingHandler)
	e.POST("/solar-only-charging", s.SetSolarOnlyChargingHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK "+versioninfo.Short())
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// SolarDataHandler always answers with the last known values.
func (s *Server) SolarDataHandler(c echo.Context) error {
	snapshot := s.store.Snapshot()
	updatedAt := make(map[string]time.Time, len(snapshot.UpdatedAt))
	for signal, at := range snapshot.UpdatedAt {
		updatedAt[string(signal)] = at
	}
	return c.JSON(http.StatusOK, SolarData{
		TripowerPower:        snapshot.PVPowerW,
		TripowerStr1Power:    snapshot.PVStringPowerW[0],
		TripowerStr2Power:    snapshot.PVStringPowerW[1],
		TripowerStr3Power:    snapshot.PVStringPowerW[2],
		BatteryPower:         snapshot.Battery.PowerW,
		BatterySoC:           snapshot.Battery.StateOfCharge,
		GridPower:            snapshot.GridPowerW,
		EmeterPower:          snapshot.MeterPowerW,
		Consumption:          snapshot.HouseConsumptionW(),
		ChargingState:        int(snapshot.Charger.Connection),
		ChargingStateText:    snapshot.Charger.Connection.String(),
		ChargingCurrentLimit: snapshot.Charger.CurrentLimitA,
		SolarOnlyCharging:    snapshot.SolarOnly,
		UpdatedAt:            updatedAt,
	})
}

func (s *Server) GetSolarOnlyChargingHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetChargeControlStateRequest{}, s.requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "charge control is not responding")
	}
	response, ok := res.(domain.GetChargeControlStateResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, ChargeControlState{
		SolarOnlyCharging: response.SolarOnly,
		LastResult:        response.LastResult,
	})
}

func (s *Server) SetSolarOnlyChargingHandler(c echo.Context) error {
	var enable bool
	if err := echo.QueryParamsBinder(c).MustBool("enable", &enable).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enable must be a boolean")
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetSolarOnlyChargingRequest{Enable: enable}, s.requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "charge control is not responding")
	}
	response, ok := res.(domain.SetSolarOnlyChargingResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	changed := response.Changed
	return c.JSON(http.StatusOK, ChargeControlState{
		SolarOnlyCharging: response.SolarOnly,
		Changed:           &changed,
	})
}
