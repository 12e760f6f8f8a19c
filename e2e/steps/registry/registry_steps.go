// Package registry holds the step definitions for the registry feature.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the suite context these steps need.
type TestContext interface {
	Execute(sender string, msg any) error
	Query(msg any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	DecodeLastResponse(target any) error
}

// instanceInfo mirrors the wire shape of a registry listing entry.
type instanceInfo struct {
	Identity struct {
		Address  string `json:"address"`
		CodeHash string `json:"code_hash"`
	} `json:"identity"`
	Label string `json:"label"`
}

type queryAnswer struct {
	ListMine *struct {
		Active   *[]instanceInfo `json:"active"`
		Inactive *[]instanceInfo `json:"inactive"`
	} `json:"list_mine"`
	ListActive *struct {
		Active []instanceInfo `json:"active"`
	} `json:"list_active"`
	ListInactive *struct {
		Inactive []instanceInfo `json:"inactive"`
	} `json:"list_inactive"`
	ViewingKeyError *struct {
		Error string `json:"error"`
	} `json:"viewing_key_error"`
}

type executeAnswer struct {
	Status *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"status"`
	ViewingKey *struct {
		Key string `json:"key"`
	} `json:"viewing_key"`
}

// RegisterSteps wires the registry step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^"([^"]*)" orders a new instance labelled "([^"]*)"$`, steps.orderInstance)
	ctx.Step(`^an unauthenticated caller orders a new instance labelled "([^"]*)"$`, steps.orderInstanceAnonymously)
	ctx.Step(`^"([^"]*)" orders a new instance labelled "([^"]*)" and it registers$`, steps.orderInstanceAndAwait)
	ctx.Step(`^"([^"]*)" orders instances labelled "([^"]*)" and they register$`, steps.orderInstancesAndAwait)

	ctx.Step(`^"([^"]*)" creates a viewing key$`, steps.createViewingKey)
	ctx.Step(`^"([^"]*)" lists their instances with that key$`, steps.listMineWithMintedKey)
	ctx.Step(`^"([^"]*)" lists their instances with key "([^"]*)"$`, steps.listMineWithKey)
	ctx.Step(`^"([^"]*)" is queried with key "([^"]*)"$`, steps.listMineWithKey)

	ctx.Step(`^"([^"]*)" stops the registry$`, steps.stopRegistry)
	ctx.Step(`^"([^"]*)" resumes the registry$`, steps.resumeRegistry)
	ctx.Step(`^the instance labelled "([^"]*)" reports its own deactivation$`, steps.deactivateInstance)

	ctx.Step(`^the active registry is listed$`, steps.listActive)
	ctx.Step(`^the active registry is listed from page (\d+) with page size (\d+)$`, steps.listActivePaged)

	ctx.Step(`^the execute answer reports success$`, steps.executeReportsSuccess)
	ctx.Step(`^the response status is (\d+)$`, steps.responseStatusIs)
	ctx.Step(`^the active registry eventually lists "([^"]*)"$`, steps.activeEventuallyLists)
	ctx.Step(`^the inactive registry eventually lists "([^"]*)"$`, steps.inactiveEventuallyLists)
	ctx.Step(`^the active registry does not list "([^"]*)"$`, steps.activeDoesNotList)
	ctx.Step(`^the owner listing includes "([^"]*)"$`, steps.ownerListingIncludes)
	ctx.Step(`^the answer is a viewing key error$`, steps.answerIsViewingKeyError)
	ctx.Step(`^the listing contains exactly (\d+) instance$`, steps.listingContainsExactly)
	ctx.Step(`^the response body length is a multiple of (\d+)$`, steps.bodyLengthMultipleOf)
}

type registrySteps struct {
	tc TestContext

	lastOwner string
	lastKey   string
}

func (s *registrySteps) orderInstance(owner, label string) error {
	s.lastOwner = owner
	return s.tc.Execute(owner, map[string]any{
		"create_instance": map[string]any{
			"label":   label,
			"owner":   owner,
			"entropy": "e2e-" + label,
		},
	})
}

func (s *registrySteps) orderInstanceAnonymously(label string) error {
	return s.tc.Execute("", map[string]any{
		"create_instance": map[string]any{
			"label":   label,
			"owner":   "nobody",
			"entropy": "e2e",
		},
	})
}

func (s *registrySteps) orderInstanceAndAwait(owner, label string) error {
	if err := s.orderInstance(owner, label); err != nil {
		return err
	}
	if err := s.executeReportsSuccess(); err != nil {
		return err
	}
	return s.activeEventuallyLists(label)
}

func (s *registrySteps) orderInstancesAndAwait(owner, labels string) error {
	for _, label := range strings.Split(labels, ",") {
		if err := s.orderInstanceAndAwait(owner, strings.TrimSpace(label)); err != nil {
			return err
		}
	}
	return nil
}

func (s *registrySteps) createViewingKey(owner string) error {
	err := s.tc.Execute(owner, map[string]any{
		"create_viewing_key": map[string]any{"entropy": "e2e-key"},
	})
	if err != nil {
		return err
	}

	var answer executeAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return err
	}
	if answer.ViewingKey == nil || answer.ViewingKey.Key == "" {
		return fmt.Errorf("no viewing key in answer: %s", s.tc.GetLastResponseBody())
	}
	s.lastKey = answer.ViewingKey.Key
	return nil
}

func (s *registrySteps) listMineWithMintedKey(owner string) error {
	return s.listMineWithKey(owner, s.lastKey)
}

func (s *registrySteps) listMineWithKey(owner, key string) error {
	return s.tc.Query(map[string]any{
		"list_mine": map[string]any{
			"address":     owner,
			"viewing_key": key,
		},
	})
}

func (s *registrySteps) stopRegistry(sender string) error {
	return s.tc.Execute(sender, map[string]any{
		"set_stopped": map[string]any{"stop": true},
	})
}

func (s *registrySteps) resumeRegistry(sender string) error {
	return s.tc.Execute(sender, map[string]any{
		"set_stopped": map[string]any{"stop": false},
	})
}

// deactivateInstance speaks as the instance's own address, the way the
// deactivation notice arrives from the platform.
func (s *registrySteps) deactivateInstance(label string) error {
	addr, err := s.findActiveAddress(label)
	if err != nil {
		return err
	}
	return s.tc.Execute(addr, map[string]any{
		"deactivate_instance": map[string]any{"owner": s.lastOwner},
	})
}

func (s *registrySteps) listActive() error {
	return s.tc.Query(map[string]any{"list_active": map[string]any{}})
}

func (s *registrySteps) listActivePaged(start, size int) error {
	return s.tc.Query(map[string]any{
		"list_active": map[string]any{
			"start_page": start,
			"page_size":  size,
		},
	})
}

func (s *registrySteps) executeReportsSuccess() error {
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("expected 200, got %d: %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	var answer executeAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return err
	}
	if answer.Status == nil || answer.Status.Status != "success" {
		return fmt.Errorf("expected success answer: %s", s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *registrySteps) responseStatusIs(expected int) error {
	if s.tc.GetLastResponseStatus() != expected {
		return fmt.Errorf("expected %d, got %d: %s", expected, s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	return nil
}

// activeEventuallyLists polls until the outbox pump has delivered the
// registration callback.
func (s *registrySteps) activeEventuallyLists(label string) error {
	return s.eventuallyListed("list_active", label)
}

func (s *registrySteps) inactiveEventuallyLists(label string) error {
	return s.eventuallyListed("list_inactive", label)
}

func (s *registrySteps) eventuallyListed(listing, label string) error {
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := s.tc.Query(map[string]any{listing: map[string]any{}}); err != nil {
			return err
		}
		if _, err := s.findInLastListing(label); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%q never appeared in %s: %s", label, listing, s.tc.GetLastResponseBody())
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *registrySteps) activeDoesNotList(label string) error {
	if err := s.listActive(); err != nil {
		return err
	}
	if _, err := s.findInLastListing(label); err == nil {
		return fmt.Errorf("%q still listed as active", label)
	}
	return nil
}

func (s *registrySteps) ownerListingIncludes(label string) error {
	var answer queryAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return err
	}
	if answer.ListMine == nil || answer.ListMine.Active == nil {
		return fmt.Errorf("no owner listing in answer: %s", s.tc.GetLastResponseBody())
	}
	for _, info := range *answer.ListMine.Active {
		if info.Label == label {
			return nil
		}
	}
	return fmt.Errorf("%q not in owner listing: %s", label, s.tc.GetLastResponseBody())
}

func (s *registrySteps) answerIsViewingKeyError() error {
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("viewing key errors answer 200, got %d", s.tc.GetLastResponseStatus())
	}
	var answer queryAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return err
	}
	if answer.ViewingKeyError == nil {
		return fmt.Errorf("expected viewing key error: %s", s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *registrySteps) listingContainsExactly(want int) error {
	var answer queryAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return err
	}
	if answer.ListActive == nil {
		return fmt.Errorf("no active listing in answer: %s", s.tc.GetLastResponseBody())
	}
	if got := len(answer.ListActive.Active); got != want {
		return fmt.Errorf("expected %d instances, got %d", want, got)
	}
	return nil
}

func (s *registrySteps) bodyLengthMultipleOf(block int) error {
	if n := len(s.tc.GetLastResponseBody()); n == 0 || n%block != 0 {
		return fmt.Errorf("body of %d bytes is not a multiple of %d", len(s.tc.GetLastResponseBody()), block)
	}
	return nil
}

func (s *registrySteps) findActiveAddress(label string) (string, error) {
	if err := s.listActive(); err != nil {
		return "", err
	}
	return s.findInLastListing(label)
}

func (s *registrySteps) findInLastListing(label string) (string, error) {
	var answer queryAnswer
	if err := s.tc.DecodeLastResponse(&answer); err != nil {
		return "", err
	}
	var infos []instanceInfo
	switch {
	case answer.ListActive != nil:
		infos = answer.ListActive.Active
	case answer.ListInactive != nil:
		infos = answer.ListInactive.Inactive
	default:
		return "", fmt.Errorf("no listing in answer")
	}
	for _, info := range infos {
		if info.Label == label {
			return info.Identity.Address, nil
		}
	}
	return "", fmt.Errorf("%q not listed", label)
}
