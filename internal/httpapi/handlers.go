package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/b-snaas/vllm-gateway/internal/apierrors"
	"github.com/b-snaas/vllm-gateway/internal/batch"
	"github.com/b-snaas/vllm-gateway/internal/chatapi"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
	"github.com/b-snaas/vllm-gateway/internal/truncate"
)

// uploadFile implements POST /v1/files. purpose must be "batch".
func (h *handlers) uploadFile(c *gin.Context) {
	purpose := c.PostForm("purpose")
	if purpose != "batch" {
		apierrors.AbortBadRequest(c, "Purpose must be 'batch'")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		apierrors.AbortBadRequest(c, "file is required")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		apierrors.AbortInternal(c, "failed to read upload")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		apierrors.AbortInternal(c, "failed to read upload")
		return
	}

	obj, err := h.d.Store.Put(data, fileHeader.Filename, purpose)
	if err != nil {
		apierrors.AbortInternal(c, "failed to persist upload")
		return
	}

	c.JSON(200, obj)
}

// chatCompletions implements POST /v1/chat/completions: truncation always
// applies first, then the request forks into the streaming proxy path or
// the interactive-queue path per spec.md §4.7.
func (h *handlers) chatCompletions(c *gin.Context) {
	var req chatapi.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortBadRequest(c, "invalid request body")
		return
	}

	truncMsgs := make([]truncate.Message, len(req.Messages))
	for i, m := range req.Messages {
		truncMsgs[i] = truncate.Message{Role: m.Role, Content: m.Content}
	}
	truncMsgs, err := truncate.Messages(h.d.Tokenizer, truncMsgs, h.d.Config.MaxInputLength)
	if err != nil {
		apierrors.AbortInternal(c, "failed to apply token budget")
		return
	}
	for i, m := range truncMsgs {
		req.Messages[i].Content = m.Content
	}

	body, err := json.Marshal(req)
	if err != nil {
		apierrors.AbortInternal(c, "failed to encode request")
		return
	}

	if req.Stream {
		h.streamChat(c, body)
		return
	}
	h.enqueueChat(c, body)
}

// streamChat bypasses the scheduler entirely (spec.md P6) and proxies the
// engine's SSE response straight through to the client.
func (h *handlers) streamChat(c *gin.Context, body json.RawMessage) {
	resp, err := h.d.Engine.Stream(c.Request.Context(), "/v1/chat/completions", body)
	if err != nil {
		switch {
		case errors.Is(err, engineclient.ErrConnect):
			apierrors.AbortServiceUnavailable(c, "Could not connect to vLLM service.")
		case errors.Is(err, engineclient.ErrTimeout):
			apierrors.AbortGatewayTimeout(c, "Request to vLLM timed out.")
		default:
			apierrors.AbortInternal(c, err.Error())
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		errBody, _ := io.ReadAll(resp.Body)
		c.AbortWithStatusJSON(resp.StatusCode, apierrors.Detail{Detail: "vLLM Error: " + string(errBody)})
		return
	}

	c.Status(200)
	c.Header("Content-Type", "text/event-stream")
	c.Writer.Flush()

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := c.Writer.Write(buf[:n]); err != nil {
				return
			}
			c.Writer.Flush()
		}
		if readErr != nil {
			return
		}
	}
}

// enqueueChat implements the non-streaming interactive path: build a slot,
// enqueue it, and await its completion cell with a 180s ceiling.
func (h *handlers) enqueueChat(c *gin.Context, body json.RawMessage) {
	slot := scheduler.NewSlot("/v1/chat/completions", body, "")
	h.d.Scheduler.Interactive.Enqueue(slot)

	ctx, cancel := context.WithTimeout(c.Request.Context(),
		time.Duration(h.d.Config.InteractiveSlotTimeoutSeconds)*time.Second)
	defer cancel()

	result, err := slot.Await(ctx)
	if err != nil {
		apierrors.AbortGatewayTimeout(c, "Request timed out while waiting in the queue.")
		return
	}

	c.Data(result.Status, "application/json", result.Body)
}

// createBatch implements POST /v1/batches.
func (h *handlers) createBatch(c *gin.Context) {
	var in batch.Create
	if err := c.ShouldBindJSON(&in); err != nil {
		apierrors.AbortBadRequest(c, "invalid request body")
		return
	}

	b := h.d.Batches.Create(in)
	c.JSON(201, b)
}

// getBatch implements GET /v1/batches/{id}.
func (h *handlers) getBatch(c *gin.Context) {
	b, ok := h.d.Batches.Get(c.Param("id"))
	if !ok {
		apierrors.AbortNotFound(c, "Batch not found")
		return
	}
	c.JSON(200, b)
}

// cancelBatch implements POST /v1/batches/{id}/cancel.
func (h *handlers) cancelBatch(c *gin.Context) {
	b, err := h.d.Batches.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, batch.ErrUnknownBatch):
		apierrors.AbortNotFound(c, "Batch not found")
		return
	case errors.Is(err, batch.ErrTerminalJob):
		apierrors.AbortBadRequest(c, "Batch is already in a terminal state")
		return
	case errors.Is(err, batch.ErrAlreadyCancelling):
		apierrors.AbortConflict(c, "Batch cancellation is already in progress")
		return
	case err != nil:
		apierrors.AbortInternal(c, err.Error())
		return
	}
	c.JSON(200, b)
}
