package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teianlab/teian-api/internal/ai"
	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/proposal"
)

type assistReq struct {
	ProjectTitle       string   `json:"projectTitle"`
	ClientName         string   `json:"clientName"`
	TechStack          []string `json:"techStack"`
	CurrentDescription string   `json:"currentDescription"`
}

// AssistDescription relays a narrative project-description completion as it
// is produced: chunks are flushed to the caller in original order with no
// buffering of the full response. Without an LLM credential it returns a
// structured suggestion of the missing fields instead.
func (h *Handler) AssistDescription(c *gin.Context) {
	var req assistReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sp, ok := h.AssistProvider.(ai.StreamProvider)
	if h.AssistProvider == nil || !ok {
		// deployment variant without streaming: suggest defaults for the
		// fields the caller left empty
		common.OK(c, gin.H{
			"suggestion": gin.H{
				"duration":   "3ヶ月",
				"budget":     "〜100万",
				"yourRole":   "Webエンジニア",
				"hourlyRate": 5000,
			},
		})
		return
	}

	prompt := proposal.BuildAssistPrompt(req.ProjectTitle, req.ClientName, req.TechStack, req.CurrentDescription)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		return
	}

	ctx := c.Request.Context()
	chunks, errs := sp.StreamChat(ctx, "", []ai.Message{{Role: "user", Content: prompt}})

	for {
		select {
		case chunk, more := <-chunks:
			if !more {
				return
			}
			if _, err := c.Writer.WriteString(chunk); err != nil {
				return
			}
			flusher.Flush()

		case err, more := <-errs:
			if !more {
				errs = nil
				continue
			}
			if err != nil {
				// headers are already out; log and end the stream
				log.Printf("assist stream error: %v", err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
