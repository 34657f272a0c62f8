package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/domain"
)

// PolicyHandlers exposes the route policies to admins
type PolicyHandlers struct {
	policies domain.PolicyService
}

// NewPolicyHandlers creates new policy handlers
func NewPolicyHandlers(policies domain.PolicyService) *PolicyHandlers {
	return &PolicyHandlers{policies: policies}
}

type policyReq struct {
	Sub string `json:"sub" binding:"required"`
	Obj string `json:"obj" binding:"required"`
	Act string `json:"act" binding:"required"`
}

func (h *PolicyHandlers) List(c *gin.Context) {
	rules := make([]gin.H, 0)
	for _, p := range h.policies.GetPolicies() {
		if len(p) < 3 {
			continue
		}
		rules = append(rules, gin.H{"sub": p[0], "obj": p[1], "act": p[2]})
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (h *PolicyHandlers) Add(c *gin.Context) {
	var r policyReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}
	if err := h.policies.AddPolicy(r.Sub, r.Obj, r.Act); err != nil {
		policyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PolicyHandlers) Remove(c *gin.Context) {
	var r policyReq
	if err := c.ShouldBindJSON(&r); err != nil {
		bindError(c, err)
		return
	}
	if err := h.policies.RemovePolicy(r.Sub, r.Obj, r.Act); err != nil {
		policyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func policyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPolicyInvalid):
		writeError(c, http.StatusUnprocessableEntity, domain.CodeValidation, err.Error())
	case errors.Is(err, domain.ErrPolicyExists):
		writeError(c, http.StatusConflict, "POLICY_EXISTS", err.Error())
	case errors.Is(err, domain.ErrPolicyNotFound):
		writeError(c, http.StatusNotFound, "POLICY_NOT_FOUND", err.Error())
	default:
		respondError(c, err)
	}
}
