package routes

import (
	"net/http"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// Setup registers every API route on the router.
func Setup(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", handlers.Signin)
			r.Post("/signout", handlers.Signout)
			r.Get("/me", handlers.GetMe)
			r.Post("/accounts", handlers.CreateAccount)
		})

		r.Route("/branches", func(r chi.Router) {
			r.Get("/", handlers.ListBranches)
			r.Post("/", handlers.CreateBranch)
			r.Get("/{id}", handlers.GetBranch)
			r.Post("/{id}/photo", handlers.UploadBranchPhoto)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/history", handlers.LoadConversation)
			r.Post("/messages", handlers.SendMessage)
			r.Patch("/messages/{id}", handlers.EditMessage)
			r.Delete("/messages/{id}", handlers.DeleteMessage)
			r.Post("/read", handlers.MarkConversationRead)
			r.Get("/unread", handlers.UnreadSummary)
			r.Get("/ws", handlers.ChatSocket)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", handlers.ListAppointments)
			r.Post("/", handlers.CreateAppointment)
		})
	})
}
