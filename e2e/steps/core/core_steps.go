package core

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, caller, role string, body any) error
	Address(name string) string
	ID(n int) uint64
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

const (
	roleOperator = "operator"
	roleProxy    = "proxy"
	nullAddress  = "0x0000000000000000000000000000000000000000"
)

var auditFields = []string{
	"created_at",
	"last_transaction_at",
	"last_emission_at",
	"last_reception_at",
	"cumulated_emission",
	"cumulated_reception",
}

// RegisterSteps registers registry, ledger and audit step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &coreSteps{tc: tc}

	// Registry
	ctx.Step(`^delegate (\d+) is a "([^"]*)" delegate using scope (\d+)$`, steps.defineDelegate)
	ctx.Step(`^token "([^"]*)" is bound to delegate (\d+)$`, steps.tokenIsBound)
	ctx.Step(`^the operator binds token "([^"]*)" to delegate (\d+)$`, steps.bindToken)
	ctx.Step(`^the operator binds the null proxy to delegate (\d+)$`, steps.bindNullProxy)

	// Oracles
	ctx.Step(`^"([^"]*)" currency quotes (\d+) against reference (\d+)$`, steps.putRate)
	ctx.Step(`^"([^"]*)" belongs to user (\d+) with limits "([^"]*)"$`, steps.registerUser)

	// Audit configuration
	ctx.Step(`^scope (\d+) audits "([^"]*)" in reference (\d+) recording "([^"]*)" limiting "([^"]*)"$`, steps.configureScope)
	ctx.Step(`^"([^"]*)" is a (sender|receiver) trigger of scope (\d+)$`, steps.setTrigger)

	// Ledger
	ctx.Step(`^the operator mints (\d+) of "([^"]*)" to "([^"]*)"$`, steps.mint)
	ctx.Step(`^"([^"]*)" has transferred (\d+) from "([^"]*)" to "([^"]*)"$`, steps.transferred)
	ctx.Step(`^"([^"]*)" transfers (\d+) from "([^"]*)" to "([^"]*)"$`, steps.transfer)
	ctx.Step(`^I ask whether "([^"]*)" can transfer (\d+) from "([^"]*)" to "([^"]*)"$`, steps.canTransfer)

	// Audit records
	ctx.Step(`^user (\d+) in scope (\d+) has a (cumulated_emission|cumulated_reception) of (\d+)$`, steps.recordShows)
}

type coreSteps struct {
	tc TestContext
}

func (s *coreSteps) operator() string {
	return s.tc.Address("operator")
}

func (s *coreSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *coreSteps) asOperator(method, path string, body any, status int) error {
	if err := s.tc.Do(method, path, s.operator(), roleOperator, body); err != nil {
		return err
	}
	return s.expect(status)
}

func (s *coreSteps) defineDelegate(delegateID int, kind string, scope int) error {
	return s.asOperator(http.MethodPut, fmt.Sprintf("/delegates/%d", s.tc.ID(delegateID)),
		map[string]any{"kind": kind, "scopes": []uint64{s.tc.ID(scope)}}, http.StatusOK)
}

func (s *coreSteps) tokenIsBound(token string, delegateID int) error {
	if err := s.bindToken(token, delegateID); err != nil {
		return err
	}
	return s.expect(http.StatusNoContent)
}

func (s *coreSteps) bindToken(token string, delegateID int) error {
	return s.tc.Do(http.MethodPut, "/proxies/"+s.tc.Address(token), s.operator(), roleOperator,
		map[string]any{"delegate_id": s.tc.ID(delegateID), "currency": "EUR"})
}

func (s *coreSteps) bindNullProxy(delegateID int) error {
	return s.tc.Do(http.MethodPut, "/proxies/"+nullAddress, s.operator(), roleOperator,
		map[string]any{"delegate_id": s.tc.ID(delegateID)})
}

func (s *coreSteps) putRate(currency string, value, reference int) error {
	return s.asOperator(http.MethodPut, fmt.Sprintf("/rates/%s/%d", currency, reference),
		map[string]any{"value": strconv.Itoa(value)}, http.StatusNoContent)
}

func (s *coreSteps) registerUser(account string, userID int, limits string) error {
	path := "/users/" + s.tc.Address(account)
	if err := s.asOperator(http.MethodPut, path, map[string]any{"user_id": s.tc.ID(userID)}, http.StatusNoContent); err != nil {
		return err
	}
	return s.asOperator(http.MethodPut, path+"/limits", map[string]any{"limits": splitList(limits)}, http.StatusNoContent)
}

func (s *coreSteps) configureScope(scope int, mode string, reference int, recorded, limited string) error {
	data, err := mask(recorded)
	if err != nil {
		return err
	}
	limits, err := mask(limited)
	if err != nil {
		return err
	}
	return s.asOperator(http.MethodPut, fmt.Sprintf("/audit/scopes/%d", s.tc.ID(scope)), map[string]any{
		"mode":           mode,
		"currency_index": reference,
		"data_mask":      data,
		"limit_mask":     limits,
	}, http.StatusOK)
}

func (s *coreSteps) setTrigger(account, role string, scope int) error {
	return s.asOperator(http.MethodPost, fmt.Sprintf("/audit/scopes/%d/triggers", s.tc.ID(scope)), map[string]any{
		"accounts":  []string{s.tc.Address(account)},
		"senders":   []bool{role == "sender"},
		"receivers": []bool{role == "receiver"},
		"excluded":  []bool{false},
	}, http.StatusNoContent)
}

func (s *coreSteps) mint(amount int, token, to string) error {
	return s.asOperator(http.MethodPost, "/tokens/"+s.tc.Address(token)+"/mint",
		map[string]string{"to": s.tc.Address(to), "amount": strconv.Itoa(amount)}, http.StatusOK)
}

func (s *coreSteps) transfer(token string, amount int, from, to string) error {
	proxy := s.tc.Address(token)
	return s.tc.Do(http.MethodPost, "/tokens/"+proxy+"/transfer", proxy, roleProxy, map[string]string{
		"from":   s.tc.Address(from),
		"to":     s.tc.Address(to),
		"amount": strconv.Itoa(amount),
	})
}

func (s *coreSteps) transferred(token string, amount int, from, to string) error {
	if err := s.transfer(token, amount, from, to); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *coreSteps) canTransfer(token string, amount int, from, to string) error {
	proxy := s.tc.Address(token)
	path := fmt.Sprintf("/tokens/%s/can-transfer?from=%s&to=%s&amount=%d",
		proxy, s.tc.Address(from), s.tc.Address(to), amount)
	return s.tc.Do(http.MethodGet, path, proxy, roleProxy, nil)
}

func (s *coreSteps) recordShows(user, scope int, field string, want int) error {
	if err := s.asOperator(http.MethodGet, fmt.Sprintf("/audit/scopes/%d/records/%d", s.tc.ID(scope), s.tc.ID(user)), nil, http.StatusOK); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if v != strconv.Itoa(want) {
		return fmt.Errorf("expected %s %d, got %v", field, want, v)
	}
	return nil
}

func mask(names string) ([]bool, error) {
	flags := make([]bool, len(auditFields))
	for _, name := range splitList(names) {
		i := indexOf(auditFields, name)
		if i < 0 {
			return nil, fmt.Errorf("unknown audit field %q", name)
		}
		flags[i] = true
	}
	return flags, nil
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
