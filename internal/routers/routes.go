package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hiroai/roomsync/internal/handlers"
	"hiroai/roomsync/internal/metrics"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
)

// Handlers groups everything the router serves. Profile may be nil.
type Handlers struct {
	Health    *handlers.HealthHandler
	Room      *handlers.RoomHandler
	Lifecycle *handlers.LifecycleHandler
	Channel   *handlers.ChannelHandler
	Feed      *handlers.FeedHandler
	Token     *handlers.TokenHandler
	Profile   *handlers.ProfileHandler
}

// New builds the service router. roomAuth guards every room-scoped route
// and may be nil.
func New(allowedOrigins []string, h Handlers, roomAuth func(http.Handler) http.Handler) *chi.Mux {
	if roomAuth == nil {
		roomAuth = func(next http.Handler) http.Handler { return next }
	}
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	router.Use(chimw.RequestID, chimw.RealIP, chimw.Logger, chimw.Recoverer, metrics.Middleware)

	HealthRoutes(router, h.Health)
	RoomRoutes(router, h, roomAuth)
	RealtimeRoutes(router, h.Channel, h.Feed, roomAuth)
	if h.Profile != nil {
		ProfileRoutes(router, h.Profile)
	}
	return router
}

func HealthRoutes(router *chi.Mux, healthHandler *handlers.HealthHandler) {
	router.Get("/healthz", healthHandler.HealthzHandler)
	router.Get("/readyz", healthHandler.ReadyzHandler)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
}

func RoomRoutes(router *chi.Mux, h Handlers, roomAuth func(http.Handler) http.Handler) {
	router.Route("/api/v1/rooms/{roomId}", func(r chi.Router) {
		r.With(middleware.ValidateRequest[*models.TokenRequest]()).Post("/tokens", h.Token.Issue)

		r.Group(func(r chi.Router) {
			r.Use(roomAuth, chimw.Timeout(60*time.Second))

			r.Get("/", h.Room.GetDocument)
			r.With(middleware.ValidateRequest[*models.DocPatch]()).Patch("/", h.Room.PatchDocument)

			r.Get("/history", h.Room.ListHistory)
			r.With(middleware.ValidateRequest[*models.CreateHistoryRequest]()).Post("/history", h.Room.AppendHistory)
			r.With(middleware.ValidateRequest[*models.HistoryAttachment]()).Patch("/history/{entryId}", h.Room.AttachHistory)

			r.Get("/sent", h.Room.ListSent)
			r.With(middleware.ValidateRequest[*models.SendQuestionRequest]()).Post("/sent", h.Room.AppendSent)
			r.Get("/timeline", h.Room.ListTimeline)

			r.With(middleware.ValidateRequest[*models.GenerateQuestionRequest]()).Post("/questions", h.Lifecycle.GenerateQuestion)
			r.With(middleware.ValidateRequest[*models.SendQuestionRequest]()).Post("/questions/send", h.Lifecycle.SendQuestion)
			r.With(middleware.ValidateRequest[*models.SubmissionRequest]()).Post("/submissions", h.Lifecycle.Submit)
			r.Post("/complete", h.Lifecycle.Complete)

			r.Get("/channel", h.Channel.Members)
		})
	})
}

// RealtimeRoutes registers the WebSocket endpoints. They sit outside the
// request timeout since the connections are long lived.
func RealtimeRoutes(router *chi.Mux, channel *handlers.ChannelHandler, feeds *handlers.FeedHandler, roomAuth func(http.Handler) http.Handler) {
	// inline so {roomId} is resolved before roomAuth runs
	ws := router.With(roomAuth)
	ws.Get("/ws/{roomId}", channel.ServeWS)
	ws.Get("/ws/rooms/{roomId}/document", feeds.Document)
	ws.Get("/ws/rooms/{roomId}/history", feeds.History)
	ws.Get("/ws/rooms/{roomId}/sent", feeds.Sent)
	ws.Get("/ws/rooms/{roomId}/timeline", feeds.Timeline)
}

func ProfileRoutes(router *chi.Mux, profileHandler *handlers.ProfileHandler) {
	router.With(middleware.ValidateRequest[*models.ProfileRequest]()).Post("/api/v1/profiles", profileHandler.Fetch)
}
