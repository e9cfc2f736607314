package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
	"github.com/mr1hm/go-arrival-alert/internal/geocode"
	"github.com/mr1hm/go-arrival-alert/internal/location"
	"github.com/mr1hm/go-arrival-alert/internal/stream"
	"github.com/mr1hm/go-arrival-alert/internal/tracker"
)

// Handler exposes the alert session to the map surface: destination
// selection, location samples in; status, a GeoJSON render document,
// and a live event stream out.
type Handler struct {
	tracker *tracker.Tracker
	events  *stream.Broadcaster
}

func NewHandler(tr *tracker.Tracker, events *stream.Broadcaster) *Handler {
	return &Handler{
		tracker: tr,
		events:  events,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	r.GET("/api/status", h.getStatus)
	r.GET("/api/map", h.getMap)
	r.GET("/api/events", h.streamEvents)

	r.PUT("/api/destination", h.putDestination)
	r.POST("/api/destination/search", h.searchDestination)
	r.DELETE("/api/destination", h.deleteDestination)

	r.POST("/api/location", h.postLocation)
	r.POST("/api/location/refresh", h.refreshLocation)

	r.POST("/api/tracking/start", h.startTracking)
	r.POST("/api/tracking/stop", h.stopTracking)
}

type coordinateRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (r *coordinateRequest) coordinate() (geo.Coordinate, error) {
	if *r.Latitude < -90 || *r.Latitude > 90 {
		return geo.Coordinate{}, errors.New("latitude must be between -90 and 90")
	}
	if *r.Longitude < -180 || *r.Longitude > 180 {
		return geo.Coordinate{}, errors.New("longitude must be between -180 and 180")
	}
	return geo.Coordinate{Lat: *r.Latitude, Lon: *r.Longitude}, nil
}

type searchRequest struct {
	Query string `json:"query"`
}

type statusResponse struct {
	State        string          `json:"state"`
	Destination  *geo.Coordinate `json:"destination,omitempty"`
	Position     *geo.Coordinate `json:"position,omitempty"`
	DistanceKm   *float64        `json:"distance_km,omitempty"`
	Tracking     bool            `json:"tracking"`
	AlertFired   bool            `json:"alert_fired,omitempty"`
	AlertMessage string          `json:"alert_message,omitempty"`
}

func toStatusResponse(st tracker.Status) statusResponse {
	resp := statusResponse{
		State:        st.State.String(),
		Destination:  st.Destination,
		Position:     st.Position,
		Tracking:     st.Tracking,
		AlertFired:   st.AlertFired,
		AlertMessage: st.AlertMessage,
	}
	if st.HasDistance {
		d := st.DistanceKm
		resp.DistanceKm = &d
	}
	return resp
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(h.tracker.Status()))
}

func (h *Handler) getMap(c *gin.Context) {
	fc := toGeoJSON(h.tracker.Status())
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) putDestination(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}
	dest, err := req.coordinate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(h.tracker.SelectDestination(dest)))
}

func (h *Handler) searchDestination(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	st, err := h.tracker.Search(c.Request.Context(), req.Query)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toStatusResponse(st))
	case errors.Is(err, geocode.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
	case errors.Is(err, geocode.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no match for query"})
	case errors.Is(err, tracker.ErrNoGeocoder):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "geocoding is not configured"})
	default:
		// Transport failure: the destination is unchanged and the
		// client may retry.
		c.JSON(http.StatusBadGateway, gin.H{"error": "geocoding failed"})
	}
}

func (h *Handler) deleteDestination(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(h.tracker.ClearDestination()))
}

func (h *Handler) postLocation(c *gin.Context) {
	var req coordinateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}
	pos, err := req.coordinate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toStatusResponse(h.tracker.ApplySample(pos)))
}

func (h *Handler) refreshLocation(c *gin.Context) {
	st, err := h.tracker.Refresh(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toStatusResponse(st))
	case errors.Is(err, location.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "location permission denied"})
	case errors.Is(err, location.ErrUnavailable), errors.Is(err, tracker.ErrNoProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no location fix available"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acquire location"})
	}
}

func (h *Handler) startTracking(c *gin.Context) {
	err := h.tracker.StartTracking()
	switch {
	case err == nil:
		c.JSON(http.StatusOK, toStatusResponse(h.tracker.Status()))
	case errors.Is(err, tracker.ErrNoDestination):
		c.JSON(http.StatusConflict, gin.H{"error": "no destination set"})
	case errors.Is(err, tracker.ErrNoProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no location provider configured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start tracking"})
	}
}

func (h *Handler) stopTracking(c *gin.Context) {
	h.tracker.StopTracking()
	c.JSON(http.StatusOK, toStatusResponse(h.tracker.Status()))
}

func (h *Handler) streamEvents(c *gin.Context) {
	id, ch := h.events.Subscribe()
	defer h.events.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		}
	}
}
