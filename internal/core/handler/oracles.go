package handler

import (
	"net/http"

	"tokencore/internal/core/models"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/httputil"
	"tokencore/pkg/requestcontext"
)

// LimitKeysRequest is the body of PUT /oracles/limit-keys. An omitted key
// disables its bound.
type LimitKeysRequest struct {
	EmissionCeiling     *int `json:"emission_ceiling"`
	EmissionFloor       *int `json:"emission_floor"`
	ReceptionCeiling    *int `json:"reception_ceiling"`
	ReceptionFloor      *int `json:"reception_floor"`
	HoldingPeriod       *int `json:"holding_period"`
	TransactionCooldown *int `json:"transaction_cooldown"`
	EmissionCooldown    *int `json:"emission_cooldown"`
	ReceptionCooldown   *int `json:"reception_cooldown"`

	parsedKeys models.LimitKeys
}

func (r *LimitKeysRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	key := func(v *int) int {
		if v == nil {
			return -1
		}
		return *v
	}
	r.parsedKeys = models.LimitKeys{
		EmissionCeiling:     key(r.EmissionCeiling),
		EmissionFloor:       key(r.EmissionFloor),
		ReceptionCeiling:    key(r.ReceptionCeiling),
		ReceptionFloor:      key(r.ReceptionFloor),
		HoldingPeriod:       key(r.HoldingPeriod),
		TransactionCooldown: key(r.TransactionCooldown),
		EmissionCooldown:    key(r.EmissionCooldown),
		ReceptionCooldown:   key(r.ReceptionCooldown),
	}
	if !r.parsedKeys.Valid() {
		return dErrors.New(dErrors.CodeValidation, "limit keys must be -1 or between 0 and 255")
	}
	return nil
}

// LimitKeysResponse reports the class-limit vector layout. -1 marks a
// disabled bound.
type LimitKeysResponse struct {
	EmissionCeiling     int `json:"emission_ceiling"`
	EmissionFloor       int `json:"emission_floor"`
	ReceptionCeiling    int `json:"reception_ceiling"`
	ReceptionFloor      int `json:"reception_floor"`
	HoldingPeriod       int `json:"holding_period"`
	TransactionCooldown int `json:"transaction_cooldown"`
	EmissionCooldown    int `json:"emission_cooldown"`
	ReceptionCooldown   int `json:"reception_cooldown"`
}

func toLimitKeys(k models.LimitKeys) LimitKeysResponse {
	return LimitKeysResponse(k)
}

// HandleGetLimitKeys handles GET /oracles/limit-keys.
func (h *Handler) HandleGetLimitKeys(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toLimitKeys(h.service.LimitKeys()))
}

// HandlePutLimitKeys handles PUT /oracles/limit-keys. The user registry and
// rate oracle stay as installed.
func (h *Handler) HandlePutLimitKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LimitKeysRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.DefineOracles(ctx, nil, nil, req.parsedKeys); err != nil {
		h.fail(ctx, w, "define limit keys failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLimitKeys(req.parsedKeys))
}
