package models

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tokencore/pkg/domain-errors"
)

// =============================================================================
// Audit Configuration Invariants
// =============================================================================
// Justification: configuration validation is the only place that rejects a
// limit bit without its data bit; the service layer relies on it.

func TestNewAuditConfiguration(t *testing.T) {
	all := MaskOf(FieldCreatedAt, FieldLastTransactionAt, FieldLastEmissionAt,
		FieldLastReceptionAt, FieldCumulatedEmission, FieldCumulatedReception)

	t.Run("limit mask subset of data mask is accepted", func(t *testing.T) {
		cfg, err := NewAuditConfiguration(3, AuditModeTriggersOnly, 1, StoragePerCore,
			MaskOf(FieldCumulatedReception, FieldCumulatedEmission), MaskOf(FieldCumulatedReception))
		require.NoError(t, err)
		assert.Equal(t, AuditModeTriggersOnly, cfg.Mode)
		assert.True(t, cfg.LimitMask.Has(FieldCumulatedReception))
		assert.False(t, cfg.LimitMask.Has(FieldCumulatedEmission))
	})

	t.Run("recorded but unchecked field is accepted", func(t *testing.T) {
		_, err := NewAuditConfiguration(1, AuditModeAlways, 0, StoragePerToken, all, 0)
		require.NoError(t, err)
	})

	t.Run("limit bit without data bit is rejected", func(t *testing.T) {
		_, err := NewAuditConfiguration(1, AuditModeAlways, 0, StoragePerCore,
			MaskOf(FieldCumulatedEmission), MaskOf(FieldCumulatedReception))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidFieldLimitMask))
		assert.Equal(t, "AU01", dErrors.ReasonOf(err))
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		_, err := NewAuditConfiguration(1, AuditMode(7), 0, StoragePerCore, all, 0)
		assert.ErrorIs(t, err, ErrInvalidAuditConfiguration)
	})

	t.Run("unknown storage scope is rejected", func(t *testing.T) {
		_, err := NewAuditConfiguration(1, AuditModeAlways, 0, StorageScope(2), all, 0)
		assert.ErrorIs(t, err, ErrInvalidAuditConfiguration)
	})

	t.Run("mask bits beyond the field set are rejected", func(t *testing.T) {
		_, err := NewAuditConfiguration(1, AuditModeAlways, 0, StoragePerCore, FieldMask(1<<6), 0)
		assert.ErrorIs(t, err, ErrInvalidAuditConfiguration)
	})
}

func TestMaskFromFlags(t *testing.T) {
	t.Run("six flags map in field order", func(t *testing.T) {
		m, err := MaskFromFlags([]bool{true, false, false, false, false, true})
		require.NoError(t, err)
		assert.Equal(t, MaskOf(FieldCreatedAt, FieldCumulatedReception), m)
		assert.Equal(t, []bool{true, false, false, false, false, true}, m.Flags())
	})

	t.Run("wrong length is rejected", func(t *testing.T) {
		_, err := MaskFromFlags([]bool{true, true})
		assert.ErrorIs(t, err, ErrInvalidAuditConfiguration)
	})
}

func TestRoleFields(t *testing.T) {
	assert.True(t, MaskOf(FieldCumulatedEmission).Intersects(SenderFields))
	assert.False(t, MaskOf(FieldCumulatedEmission).Intersects(ReceiverFields))
	assert.True(t, MaskOf(FieldLastTransactionAt).Intersects(ReceiverFields))
	assert.False(t, MaskOf(FieldLastReceptionAt).Intersects(SenderFields))
}

func TestOwner(t *testing.T) {
	core := common.HexToAddress("0x01")
	token := common.HexToAddress("0x02")

	perCore := &AuditConfiguration{StorageScope: StoragePerCore}
	perToken := &AuditConfiguration{StorageScope: StoragePerToken}

	assert.Equal(t, core, perCore.Owner(core, token))
	assert.Equal(t, token, perToken.Owner(core, token))
}

func TestParseModeAndScope(t *testing.T) {
	m, ok := ParseAuditMode("triggers_only")
	assert.True(t, ok)
	assert.Equal(t, AuditModeTriggersOnly, m)
	_, ok = ParseAuditMode("sometimes")
	assert.False(t, ok)

	sc, ok := ParseStorageScope("per_token")
	assert.True(t, ok)
	assert.Equal(t, StoragePerToken, sc)
	_, ok = ParseStorageScope("global")
	assert.False(t, ok)
}
