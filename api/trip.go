package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/flightres/internal/domain"
	"github.com/Domenick1991/flightres/internal/repository"
	"github.com/Domenick1991/flightres/internal/service/search"
	"github.com/Domenick1991/flightres/internal/service/trip"
	"github.com/gin-gonic/gin"
)

type TripHandler struct {
	engine trip.TripUseCase
}

func NewTripHandler(engine trip.TripUseCase) *TripHandler {
	return &TripHandler{engine: engine}
}

func (h *TripHandler) Register(router *gin.RouterGroup) {
	router.POST("/users", h.createUser)
	router.POST("/login", h.login)
	router.GET("/search", h.search)
	router.POST("/reservations", h.book)
	router.POST("/reservations/:id/payment", h.pay)
	router.GET("/reservations", h.listReservations)
}

type createUserRequest struct {
	Username       string `json:"username" binding:"required"`
	Password       string `json:"password" binding:"required"`
	InitialBalance int64  `json:"initial_balance"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type bookRequest struct {
	DisplayID *int `json:"display_id" binding:"required"`
}

type itineraryResponse struct {
	DisplayID int             `json:"display_id"`
	Duration  int             `json:"duration"`
	Flights   []domain.Flight `json:"flights"`
}

type reservationResponse struct {
	ID      int64           `json:"id"`
	Paid    bool            `json:"paid"`
	Flights []domain.Flight `json:"flights"`
}

func (h *TripHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.CreateUser(c.Request.Context(), req.Username, req.Password, req.InitialBalance); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": req.Username})
}

func (h *TripHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (h *TripHandler) search(c *gin.Context) {
	day, err := strconv.Atoi(c.Query("day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day"})
		return
	}
	max, err := strconv.Atoi(c.DefaultQuery("max", "3"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max"})
		return
	}
	q := search.Query{
		Origin:     c.Query("origin"),
		Dest:       c.Query("dest"),
		DirectOnly: c.Query("direct") == "true",
		Day:        day,
		Max:        max,
	}
	if q.Origin == "" || q.Dest == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "origin and dest are required"})
		return
	}

	ranked, err := h.engine.Search(c.Request.Context(), q)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]itineraryResponse, 0, len(ranked))
	for _, r := range ranked {
		resp = append(resp, itineraryResponse{
			DisplayID: r.DisplayID,
			Duration:  r.Trip.Duration(),
			Flights:   r.Trip.Flights(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TripHandler) book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reservationID, err := h.engine.Book(c.Request.Context(), *req.DisplayID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reservation_id": reservationID})
}

func (h *TripHandler) pay(c *gin.Context) {
	reservationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	remaining, err := h.engine.Pay(c.Request.Context(), reservationID)
	if err != nil {
		var insufficient *repository.InsufficientFundsError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   err.Error(),
				"balance": insufficient.Balance,
				"cost":    insufficient.Cost,
			})
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation_id": reservationID, "remaining_balance": remaining})
}

func (h *TripHandler) listReservations(c *gin.Context) {
	reservations, err := h.engine.ListReservations(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]reservationResponse, 0, len(reservations))
	for _, r := range reservations {
		resp = append(resp, reservationResponse{
			ID:      r.ID,
			Paid:    r.Paid,
			Flights: r.Trip.Flights(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps engine outcomes to HTTP statuses. Validation and business
// rejections stay in the 4xx range; anything unexpected is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trip.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, trip.ErrNoSuchItinerary),
		errors.Is(err, trip.ErrNoUnpaidReservation),
		errors.Is(err, search.ErrNoFlights):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrAlreadyLoggedIn),
		errors.Is(err, trip.ErrUserExists),
		errors.Is(err, trip.ErrSameDayConflict):
		return http.StatusConflict
	case errors.Is(err, trip.ErrLoginFailed),
		errors.Is(err, trip.ErrNegativeBalance):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
