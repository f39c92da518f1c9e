package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// CallsResponse contains a list of recorded LLM calls.
type CallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// CallResponse contains a single recorded LLM call.
type CallResponse struct {
	Call *llmcall.Call `json:"call,omitempty"`
}

// ListCallsEndpoint handles GET /calls.
type ListCallsEndpoint struct{}

func (e *ListCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/calls", e.handler
}

func (e *ListCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List LLM calls
//	@Description	Get recorded LLM call history with optional filters, newest first
//	@Tags			calls
//	@Produce		json
//	@Param			flow		query		string	false	"Filter by flow (review, explain, analyze)"
//	@Param			target		query		string	false	"Filter by reviewed artifact"
//	@Param			prompt_key	query		string	false	"Filter by prompt key"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			success		query		bool	false	"Filter by success status"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			offset		query		int		false	"Result offset"
//	@Param			after		query		string	false	"Calls after this RFC3339 timestamp"
//	@Param			before		query		string	false	"Calls before this RFC3339 timestamp"
//	@Success		200			{object}	CallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/calls [get]
func (e *ListCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "call store not available")
		return
	}

	q := r.URL.Query()
	filter := llmcall.QueryFilter{
		Flow:      q.Get("flow"),
		Target:    q.Get("target"),
		PromptKey: q.Get("prompt_key"),
		Provider:  q.Get("provider"),
		Model:     q.Get("model"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid success filter: %q must be true or false", v))
			return
		}
		filter.Success = &b
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q must be an integer", v))
			return
		}
		filter.Limit = limit
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset: %q must be an integer", v))
			return
		}
		filter.Offset = offset
	}

	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v))
			return
		}
		filter.After = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid before time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v))
			return
		}
		filter.Before = &t
	}

	calls := store.List(filter)
	writeJSON(w, http.StatusOK, CallsResponse{Calls: calls, Total: len(calls)})
}

func (e *ListCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flow, target, promptKey, provider, model string
	var limit, offset int
	var successOnly, failedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded LLM calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			params := url.Values{}
			if flow != "" {
				params.Set("flow", flow)
			}
			if target != "" {
				params.Set("target", target)
			}
			if promptKey != "" {
				params.Set("prompt_key", promptKey)
			}
			if provider != "" {
				params.Set("provider", provider)
			}
			if model != "" {
				params.Set("model", model)
			}
			if successOnly {
				params.Set("success", "true")
			}
			if failedOnly {
				params.Set("success", "false")
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			path := "/calls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp CallsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&flow, "flow", "", "Filter by flow (review, explain, analyze)")
	cmd.Flags().StringVar(&target, "target", "", "Filter by reviewed artifact")
	cmd.Flags().StringVar(&promptKey, "prompt-key", "", "Filter by prompt key")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	cmd.Flags().BoolVar(&successOnly, "success", false, "Only show successful calls")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed calls")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetCallEndpoint handles GET /calls/{id}.
type GetCallEndpoint struct{}

func (e *GetCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/calls/{id}", e.handler
}

func (e *GetCallEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get an LLM call
//	@Description	Get a single recorded LLM call by ID
//	@Tags			calls
//	@Produce		json
//	@Param			id	path		string	true	"Call ID"
//	@Success		200	{object}	CallResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/calls/{id} [get]
func (e *GetCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "call store not available")
		return
	}

	call := store.Get(id)
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, CallResponse{Call: call})
}

func (e *GetCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a recorded LLM call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CallResponse
			if err := client.Get(cmd.Context(), "/calls/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}
