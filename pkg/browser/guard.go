package browser

// NavigationCheck reports whether a page may navigate to url. A non-nil
// error refuses the navigation and is returned to the caller unchanged.
type NavigationCheck func(url string) error

// GuardNavigation wraps page so every Goto is checked first. Redirects,
// reloads and history moves never pass through Goto; contexts created with
// ContextOptions.NavigationFilter cover those inside the engine.
func GuardNavigation(page Page, check NavigationCheck) Page {
	if check == nil {
		return page
	}
	return &guardedPage{Page: page, check: check}
}

type guardedPage struct {
	Page
	check NavigationCheck
}

func (p *guardedPage) Goto(url string, opts NavigateOptions) error {
	if err := p.check(url); err != nil {
		return err
	}
	return p.Page.Goto(url, opts)
}
