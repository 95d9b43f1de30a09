package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"docketline/internal/domain"
	"docketline/internal/engine"
	"docketline/internal/repo"
)

type caseBody struct {
	Body domain.Case
}

func registerCases(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Open a case",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ActorHeader
		Body struct {
			ID                string `json:"id,omitempty"`
			Jurisdiction      string `json:"jurisdiction"`
			ApplicationNumber string `json:"application_number,omitempty"`
			FilingDate        string `json:"filing_date,omitempty" format:"date"`
		}
	}) (*caseBody, error) {
		c, err := e.CreateCase(ctx, engine.CaseCreateOptions{
			ID:                input.Body.ID,
			Jurisdiction:      input.Body.Jurisdiction,
			ApplicationNumber: input.Body.ApplicationNumber,
			FilingDate:        input.Body.FilingDate,
			ActorID:           input.actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Get a case",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
	}) (*caseBody, error) {
		c, err := e.Repo.GetCase(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []domain.Case `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListCases(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Case `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/close",
		Summary:     "Close a case",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		CaseID string `path:"case_id"`
	}) (*caseBody, error) {
		c, err := e.CloseCase(ctx, input.CaseID, input.actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/reopen",
		Summary:     "Reopen a case",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		CaseID string `path:"case_id"`
	}) (*caseBody, error) {
		c, err := e.ReopenCase(ctx, input.CaseID, input.actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &caseBody{Body: c}, nil
	})
}

type reportBody struct {
	Body engine.IngestReport
}

func registerDocuments(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-document",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/documents",
		Summary:       "Submit a document and derive from it",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ActorHeader
		CaseID string `path:"case_id"`
		Body   struct {
			Kind              string `json:"kind"`
			Source            string `json:"source,omitempty"`
			ReceivedAt        string `json:"received_at,omitempty" format:"date-time"`
			ExternalRef       string `json:"external_ref,omitempty"`
			ContentHandle     string `json:"content_handle,omitempty"`
			OccurredAt        string `json:"occurred_at,omitempty"`
			ApplicationNumber string `json:"application_number,omitempty"`
		}
	}) (*reportBody, error) {
		report, err := e.SubmitDocument(ctx, engine.DocumentSubmitOptions{
			CaseID:            input.CaseID,
			Kind:              input.Body.Kind,
			Source:            input.Body.Source,
			ReceivedAt:        input.Body.ReceivedAt,
			ExternalRef:       input.Body.ExternalRef,
			ContentHandle:     input.Body.ContentHandle,
			OccurredAt:        input.Body.OccurredAt,
			ApplicationNumber: input.Body.ApplicationNumber,
			ActorID:           input.actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &reportBody{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/documents",
		Summary:     "List a case's documents",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
	}) (*struct {
		Body struct {
			Items []domain.Document `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListDocuments(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Document `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reclassify-document",
		Method:      http.MethodPost,
		Path:        "/documents/{document_id}/reclassify",
		Summary:     "Correct a document's kind and re-derive",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		DocumentID string `path:"document_id"`
		Body       struct {
			Kind string `json:"kind"`
		}
	}) (*reportBody, error) {
		report, err := e.ReclassifyDocument(ctx, engine.ReclassifyOptions{
			DocumentID: input.DocumentID,
			NewKind:    input.Body.Kind,
			ActorID:    input.actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &reportBody{Body: report}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-event",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/events",
		Summary:       "Log a case-internal event",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ActorHeader
		CaseID string `path:"case_id"`
		Body   struct {
			Type       string `json:"type"`
			OccurredAt string `json:"occurred_at,omitempty"`
			Note       string `json:"note,omitempty"`
		}
	}) (*reportBody, error) {
		report, err := e.LogEvent(ctx, engine.EventLogOptions{
			CaseID:     input.CaseID,
			Type:       input.Body.Type,
			OccurredAt: input.Body.OccurredAt,
			Note:       input.Body.Note,
			ActorID:    input.actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &reportBody{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/events",
		Summary:     "List a case's events",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
	}) (*struct {
		Body struct {
			Items []domain.Event `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListEvents(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Event `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-event",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/cancel",
		Summary:     "Cancel an event and cascade",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		EventID string `path:"event_id"`
		Body    struct {
			Reason string `json:"reason"`
		}
	}) (*struct {
		Body domain.Event
	}, error) {
		ev, err := e.CancelEvent(ctx, input.EventID, input.Body.Reason, input.actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event
		}{Body: ev}, nil
	})
}

type deadlineBody struct {
	Body domain.Deadline
}

func registerDeadlines(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deadlines",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/deadlines",
		Summary:     "List a case's deadlines",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
	}) (*struct {
		Body struct {
			Items []domain.Deadline `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListDeadlines(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Deadline `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "satisfy-deadline",
		Method:      http.MethodPost,
		Path:        "/deadlines/{deadline_id}/satisfy",
		Summary:     "Mark a deadline satisfied",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		DeadlineID string `path:"deadline_id"`
	}) (*deadlineBody, error) {
		d, err := e.SatisfyDeadline(ctx, input.DeadlineID, input.actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &deadlineBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "extend-deadline",
		Method:      http.MethodPost,
		Path:        "/deadlines/{deadline_id}/extend",
		Summary:     "Apply an extension grant",
	}, func(ctx context.Context, input *struct {
		ActorHeader
		DeadlineID string `path:"deadline_id"`
		Body       struct {
			Days       int    `json:"days"`
			OccurredAt string `json:"occurred_at,omitempty"`
		}
	}) (*struct {
		Body engine.ExtensionReport
	}, error) {
		report, err := e.ApplyExtension(ctx, engine.ExtensionOptions{
			DeadlineID: input.DeadlineID,
			Days:       input.Body.Days,
			OccurredAt: input.Body.OccurredAt,
			ActorID:    input.actor(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ExtensionReport
		}{Body: report}, nil
	})
}

type taskBody struct {
	Body domain.Task
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/tasks",
		Summary:     "List a case's tasks",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Status string `query:"status"`
	}) (*struct {
		Body struct {
			Items []domain.Task `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{CaseID: input.CaseID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Task `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	transition := func(opID, pathSuffix, summary string, op func(context.Context, string, string) (domain.Task, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/tasks/{task_id}/" + pathSuffix,
			Summary:     summary,
		}, func(ctx context.Context, input *struct {
			ActorHeader
			TaskID string `path:"task_id"`
		}) (*taskBody, error) {
			t, err := op(ctx, input.TaskID, input.actor())
			if err != nil {
				return nil, handleError(err)
			}
			return &taskBody{Body: t}, nil
		})
	}
	transition("start-task", "start", "Start a task", e.StartTask)
	transition("complete-task", "complete", "Complete a task", e.CompleteTask)
	transition("cancel-task", "cancel", "Cancel a task", e.CancelTask)
}

func registerLog(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-case-log",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/log",
		Summary:     "Tail a case's audit log",
	}, func(ctx context.Context, input *struct {
		CaseID string `path:"case_id"`
		Limit  int    `query:"limit"`
		Cursor int64  `query:"cursor"`
	}) (*struct {
		Body struct {
			Items []domain.LogEntry `json:"items"`
		}
	}, error) {
		items, err := e.Repo.ListLog(ctx, input.CaseID, input.Limit, input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.LogEntry `json:"items"`
			}
		}{}
		resp.Body.Items = items
		return resp, nil
	})
}
