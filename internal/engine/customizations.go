package engine

import (
	"context"
	"slices"
	"strings"

	"storefront/internal/authguard"
	"storefront/internal/model"
)

// Saved customization records belong to the signed-in shopper and are read
// and written through the storefront API directly; only the list is cached.

// Customizations returns the shopper's saved designs, fetching them once per
// login.
func (e *Engine) Customizations(ctx context.Context) ([]model.Customization, error) {
	token, err := e.requireToken("saved designs")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.customLoaded {
		out := cloneCustomizations(e.customizations)
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	records, err := e.api.ListCustomizations(ctx, token)
	if err != nil {
		e.guard.Check("list_customizations", err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Token() != token {
		return cloneCustomizations(records), nil
	}
	e.customizations, e.customLoaded = cloneCustomizations(records), true
	return cloneCustomizations(records), nil
}

// SaveCustomization creates or updates a saved design. A record without an
// id is created as a draft.
func (e *Engine) SaveCustomization(ctx context.Context, c model.Customization) (*model.Customization, error) {
	token, err := e.requireToken("saved designs")
	if err != nil {
		return nil, err
	}
	if c.Price < 0 {
		return nil, model.NewValidationError("price", "must not be negative")
	}
	c.ID = strings.TrimSpace(c.ID)
	if c.Status == "" {
		c.Status = model.CustomizationDraft
	}
	c.Design = c.Design.Clone()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	saved, err := e.api.SaveCustomization(ctx, token, &c)
	if err != nil {
		e.guard.Check("save_customization", err)
		return nil, err
	}
	e.upsertCached(token, *saved)
	return saved, nil
}

// SubmitCustomization hands a saved design to production.
func (e *Engine) SubmitCustomization(ctx context.Context, id string) (*model.Customization, error) {
	token, err := e.requireToken("saved designs")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, model.NewValidationError("customization_id", "customization is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	submitted, err := e.api.SubmitCustomization(ctx, token, id)
	if err != nil {
		e.guard.Check("submit_customization", err)
		return nil, err
	}
	e.upsertCached(token, *submitted)
	return submitted, nil
}

// DeleteCustomization removes a saved design. A copy already in the cart
// keeps its snapshot and stays.
func (e *Engine) DeleteCustomization(ctx context.Context, id string) error {
	token, err := e.requireToken("saved designs")
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError("customization_id", "customization is required")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.api.DeleteCustomization(ctx, token, id); err != nil {
		e.guard.Check("delete_customization", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Token() == token {
		e.customizations = slices.DeleteFunc(e.customizations, func(c model.Customization) bool {
			return c.ID == id
		})
	}
	return nil
}

func (e *Engine) upsertCached(token string, rec model.Customization) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Token() != token || !e.customLoaded {
		return
	}
	rec.Design = rec.Design.Clone()
	if i := slices.IndexFunc(e.customizations, func(c model.Customization) bool { return c.ID == rec.ID }); i >= 0 {
		e.customizations[i] = rec
		return
	}
	e.customizations = append(e.customizations, rec)
}

// requireToken returns the session token or sends a guest to login.
func (e *Engine) requireToken(feature string) (string, error) {
	token := e.session.Token()
	if token == "" {
		e.nav.ToLogin()
		return "", model.NewLoginRequiredError(feature)
	}
	return token, nil
}

func cloneCustomizations(in []model.Customization) []model.Customization {
	out := make([]model.Customization, len(in))
	for i, c := range in {
		c.Design = c.Design.Clone()
		out[i] = c
	}
	return out
}

// navigators and notifiers fan a guard signal out to several observers.
type navigators []authguard.Navigator

func (ns navigators) ToLogin() {
	for _, n := range ns {
		n.ToLogin()
	}
}

type notifiers []authguard.Notifier

func (ns notifiers) Notify(n authguard.Notice) {
	for _, o := range ns {
		o.Notify(n)
	}
}
