package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/marchfour/regionlens/page"
)

// PageHost implements overlay.Host over one Rod page.
type PageHost struct {
	page   *rod.Page
	logger *slog.Logger
}

// Location returns the page's current URL.
func (h *PageHost) Location(ctx context.Context) (string, error) {
	info, err := h.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Snapshot serialises the complete DOM as outer HTML.
func (h *PageHost) Snapshot(ctx context.Context) (string, error) {
	res, err := h.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: snapshot: %w", err)
	}
	return res.Value.Str(), nil
}

// applyJS replays engine ops on the live tree. Node paths use childNodes
// indexing, matching the engine's mirror; an op whose path no longer
// resolves is counted and skipped, never thrown.
const applyJS = `(ops) => {
	const resolve = (path) => {
		let node = document;
		for (const idx of path) {
			node = node.childNodes[idx];
			if (!node) return null;
		}
		return node;
	};
	let failed = 0;
	for (const op of ops) {
		const el = op.path ? resolve(op.path) : null;
		switch (op.kind) {
		case 'add-class':
			if (el && el.classList) el.classList.add(op.class); else failed++;
			break;
		case 'remove-class':
			if (el && el.classList) el.classList.remove(op.class); else failed++;
			break;
		case 'append-tag': {
			if (!el || !el.appendChild) { failed++; break; }
			const span = document.createElement('span');
			span.className = op.class;
			span.textContent = op.text;
			el.appendChild(span);
			break;
		}
		case 'remove-by-class':
			document.querySelectorAll('.' + op.class).forEach((n) => {
				const parent = n.parentNode;
				if (parent) { parent.removeChild(n); parent.normalize(); }
			});
			break;
		case 'wrap-text': {
			if (!el || el.nodeType !== Node.TEXT_NODE) { failed++; break; }
			const at = el.nodeValue.indexOf(op.text);
			if (at < 0) { failed++; break; }
			const range = document.createRange();
			range.setStart(el, at);
			range.setEnd(el, at + op.text.length);
			const span = document.createElement('span');
			span.className = op.class;
			range.surroundContents(span);
			break;
		}
		case 'unwrap':
			document.querySelectorAll('.' + op.class).forEach((n) => {
				const parent = n.parentNode;
				if (!parent) return;
				while (n.firstChild) parent.insertBefore(n.firstChild, n);
				parent.removeChild(n);
				parent.normalize();
			});
			break;
		case 'scroll': {
			let target = el;
			if (target && target.nodeType === Node.TEXT_NODE) target = target.parentElement;
			if (target && target.scrollIntoView) {
				target.scrollIntoView({behavior: 'smooth', block: 'center'});
			}
			break;
		}
		}
	}
	return failed;
}`

// Apply replays ops on the live page, in order.
func (h *PageHost) Apply(ctx context.Context, ops []page.Op) error {
	if len(ops) == 0 {
		return nil
	}
	res, err := h.page.Context(ctx).Eval(applyJS, ops)
	if err != nil {
		return fmt.Errorf("browser: apply ops: %w", err)
	}
	if failed := res.Value.Int(); failed > 0 {
		h.logger.Debug("browser: some ops skipped on live page", "failed", failed)
	}
	return nil
}

// hookJS wraps the two history mutation entry points and the
// back/forward signal. The original mutation always runs first; the
// exposed binding fires afterwards.
const hookJS = `() => {
	if (window.__rlHooked) return;
	window.__rlHooked = true;
	const fire = () => { if (window.__rlNavigated) window.__rlNavigated('history'); };
	const push = history.pushState;
	history.pushState = function (...args) { const r = push.apply(this, args); fire(); return r; };
	const replace = history.replaceState;
	history.replaceState = function (...args) { const r = replace.apply(this, args); fire(); return r; };
	window.addEventListener('popstate', fire);
}`

// HookNavigation installs the wrap-and-forward history hooks.
func (h *PageHost) HookNavigation(ctx context.Context, notify func()) error {
	_, err := h.page.Expose("__rlNavigated", func(gson.JSON) (interface{}, error) {
		notify()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("browser: expose navigation binding: %w", err)
	}
	if _, err := h.page.Context(ctx).Eval(hookJS); err != nil {
		return fmt.Errorf("browser: install navigation hooks: %w", err)
	}
	return nil
}

// clickJS installs one delegated listener for diff fragments: any
// element carrying data-rl-fragment (or an injected region tag).
const clickJS = `() => {
	if (window.__rlClickHooked) return;
	window.__rlClickHooked = true;
	document.addEventListener('click', (ev) => {
		const el = ev.target && ev.target.closest
			? ev.target.closest('[data-rl-fragment], .rl-region-tag') : null;
		if (!el || !window.__rlFragmentClick) return;
		window.__rlFragmentClick(el.getAttribute('data-rl-fragment') || el.textContent || '');
	}, true);
}`

// OnFragmentClick binds diff-fragment clicks to fn.
func (h *PageHost) OnFragmentClick(ctx context.Context, fn func(fragment string)) error {
	_, err := h.page.Expose("__rlFragmentClick", func(v gson.JSON) (interface{}, error) {
		fn(v.Str())
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("browser: expose click binding: %w", err)
	}
	if _, err := h.page.Context(ctx).Eval(clickJS); err != nil {
		return fmt.Errorf("browser: install click binding: %w", err)
	}
	return nil
}

// Close closes the tab.
func (h *PageHost) Close() error {
	if h.page != nil {
		return h.page.Close()
	}
	return nil
}
