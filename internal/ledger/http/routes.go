package ledgerhttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the ledger API onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/journal-entries", func(r chi.Router) {
		r.Get("/", h.listEntries)
		r.Post("/", h.createEntry)
		r.Get("/stats", h.entryStats)
		r.Post("/validate", h.validateEntry)
		r.Post("/batch-post", h.batchPost)
		r.Post("/import", h.importEntries)
		r.Post("/from-template", h.createFromTemplate)
		r.Post("/generate-recurring", h.generateRecurring)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getEntry)
			r.Put("/", h.updateEntry)
			r.Delete("/", h.deleteEntry)
			r.Post("/approve", h.approveEntry)
			r.Post("/reject", h.rejectEntry)
			r.Post("/post", h.postEntry)
			r.Post("/reverse", h.reverseEntry)
			r.Post("/copy", h.copyEntry)
			r.Post("/attachments", h.addAttachment)
		})
	})
	r.Post("/journal-templates", h.createTemplate)

	r.Route("/allocation-rules", func(r chi.Router) {
		r.Get("/", h.listRules)
		r.Post("/", h.createRule)
		r.Get("/{id}", h.getRule)
		r.Put("/{id}", h.updateRule)
		r.Post("/{id}/activate", h.activateRule)
		r.Post("/{id}/deactivate", h.deactivateRule)
	})

	r.Route("/budgets", func(r chi.Router) {
		r.Get("/", h.listBudgets)
		r.Post("/", h.createBudget)
		r.Get("/alerts", h.budgetAlerts)
		r.Post("/transfer", h.transferBudget)
		r.Post("/copy-year", h.copyBudgetYear)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getBudget)
			r.Delete("/", h.deleteBudget)
			r.Post("/revise", h.reviseBudget)
			r.Post("/submit", h.submitBudget)
			r.Post("/approve", h.approveBudget)
			r.Post("/reject", h.rejectBudget)
			r.Post("/freeze", h.freezeBudget)
			r.Post("/refresh", h.refreshBudget)
		})
	})

	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.listPeriodLocks)
		r.Get("/{year}/{month}", h.periodStatus)
		r.Post("/lock", h.lockPeriod)
		r.Post("/unlock", h.unlockPeriod)
	})

	r.Route("/references", func(r chi.Router) {
		r.Get("/outstanding", h.listOutstanding)
		r.Post("/manual", h.createManualReference)
		r.Post("/allocate", h.allocatePayment)
		r.Post("/deallocate", h.deallocatePayment)
		r.Get("/{id}", h.getReference)
		r.Put("/{id}", h.updateReference)
		r.Delete("/{id}", h.deleteReference)
	})
}
