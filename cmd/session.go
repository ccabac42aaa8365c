package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"noticeboard/board"
	"noticeboard/models"
	"noticeboard/render"
)

const (
	clearScreen = "\033[H\033[2J"
	listHelp    = "o <id> open · w write · e <id> edit · d <id> delete · r refresh · x [n] dismiss · q quit"
	detailHelp  = "e edit · d delete · b back · x [n] dismiss · q quit"
	formHelp    = "empty line keeps the shown value · . cancels"
)

// terminal redraws the current page from whichever goroutine changed it
type terminal struct {
	mu     sync.Mutex
	out    io.Writer
	page   func() string
	footer string
}

func (t *terminal) show(page func() string, footer string) {
	t.mu.Lock()
	t.page, t.footer = page, footer
	t.mu.Unlock()
	t.draw()
}

func (t *terminal) draw() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return
	}
	fmt.Fprint(t.out, clearScreen, t.page(), "\n", t.footer, "\n> ")
}

// router queues navigations requested by the views
type router struct {
	routes chan board.Route
}

func newRouter() *router {
	return &router{routes: make(chan board.Route, 4)}
}

func (r *router) Navigate(route board.Route) {
	select {
	case r.routes <- route:
	default:
		log.WithFields(log.Fields{"route": route.Path()}).Warn("Navigation dropped")
	}
}

func (r *router) drain() {
	for {
		select {
		case <-r.routes:
		default:
			return
		}
	}
}

// session runs the board pages in a terminal, one page at a time
type session struct {
	svc   board.DataService
	feed  board.ChangeFeed
	notes *board.Notifications
	term  *terminal
	nav   *router
	lines <-chan string
}

func newSession(svc board.DataService, feed board.ChangeFeed, in io.Reader, out io.Writer) *session {
	s := &session{
		svc:   svc,
		feed:  feed,
		notes: board.NewNotifications(),
		term:  &terminal{out: out},
		nav:   newRouter(),
		lines: readLines(in),
	}
	s.notes.OnChange(func([]models.Notification) { s.term.draw() })
	return s
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

// run shows pages starting at start until the user quits or ctx is done
func (s *session) run(ctx context.Context, start board.Route) error {
	defer s.notes.Close()

	route := &start
	for route != nil {
		s.nav.drain()
		log.WithFields(log.Fields{"route": route.Path()}).Debug("Showing page")

		var err error
		switch route.Kind {
		case board.RouteList:
			route, err = s.listPage(ctx)
		case board.RouteDetail:
			route, err = s.detailPage(ctx, route.PostId)
		case board.RouteWrite, board.RouteEdit:
			route, err = s.editorPage(ctx, route.PostId)
		default:
			return fmt.Errorf("unknown route %s", route.Path())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// next waits for a command line or a navigation requested by a view.
// ok is false when the session should end.
func (s *session) next(ctx context.Context) (line string, route *board.Route, ok bool) {
	// Navigation from the last command wins over further input
	select {
	case r := <-s.nav.routes:
		return "", &r, true
	default:
	}

	select {
	case <-ctx.Done():
		return "", nil, false
	case r := <-s.nav.routes:
		return "", &r, true
	case line, open := <-s.lines:
		return line, nil, open
	}
}

func (s *session) withNotes(body string) string {
	return body + render.Notifications(s.notes.List())
}

func (s *session) listPage(ctx context.Context) (*board.Route, error) {
	view := board.NewListView(s.svc, s.feed, s.notes)
	view.OnChange(s.term.draw)
	page := func() string {
		return s.withNotes(render.List(view.Posts(), view.State()))
	}
	s.term.show(page, listHelp)

	if err := view.Mount(ctx); err != nil {
		log.WithFields(log.Fields{"error": err}).Debug("List mount")
	}
	defer view.Unmount()

	for {
		line, route, ok := s.next(ctx)
		if !ok {
			return nil, nil
		}
		if route != nil {
			return route, nil
		}

		cmd, id := parseCommand(line)
		switch cmd {
		case "":
			s.term.draw()
		case "q":
			return nil, nil
		case "r":
			if err := view.Refresh(ctx); err != nil {
				log.WithFields(log.Fields{"error": err}).Debug("List refresh")
			}
		case "x":
			s.dismiss(id)
		case "w":
			r := board.WriteRoute()
			return &r, nil
		case "o", "e", "d":
			if id == 0 {
				s.notes.Push(fmt.Sprintf("%q needs a post id", cmd), models.SeverityInfo)
				continue
			}
			switch cmd {
			case "o":
				r := board.DetailRoute(id)
				return &r, nil
			case "e":
				r := board.EditRoute(id)
				return &r, nil
			default:
				confirmed, ok := s.confirm(ctx, fmt.Sprintf("Delete post %d? (y/N)", id))
				if !ok {
					return nil, nil
				}
				s.term.show(page, listHelp)
				if !confirmed {
					continue
				}
				if err := view.Delete(ctx, id); err != nil {
					log.WithFields(log.Fields{"error": err, "id": id}).Debug("List delete")
				}
			}
		default:
			s.notes.Push(fmt.Sprintf("Unknown command %q", line), models.SeverityInfo)
		}
	}
}

func (s *session) detailPage(ctx context.Context, id int64) (*board.Route, error) {
	view := board.NewDetailView(id, s.svc, s.feed, s.notes, s.nav)
	view.OnChange(s.term.draw)
	page := func() string {
		post, ok := view.Post()
		if !ok {
			return s.withNotes(fmt.Sprintf("Post %d is not available\n", id))
		}
		return s.withNotes(render.Post(post, view.State()))
	}
	s.term.show(page, detailHelp)

	if err := view.Mount(ctx); err != nil {
		log.WithFields(log.Fields{"error": err}).Debug("Detail mount")
	}
	defer view.Unmount()

	for {
		line, route, ok := s.next(ctx)
		if !ok {
			return nil, nil
		}
		if route != nil {
			return route, nil
		}

		switch cmd, n := parseCommand(line); cmd {
		case "":
			s.term.draw()
		case "q":
			return nil, nil
		case "x":
			s.dismiss(n)
		case "b":
			r := board.ListRoute()
			return &r, nil
		case "e":
			r := board.EditRoute(id)
			return &r, nil
		case "d":
			confirmed, ok := s.confirm(ctx, fmt.Sprintf("Delete post %d? (y/N)", id))
			if !ok {
				return nil, nil
			}
			if !confirmed {
				s.term.show(page, detailHelp)
				continue
			}
			// Success navigates, failure is already a notification
			if err := view.Delete(ctx); err != nil {
				s.term.show(page, detailHelp)
				log.WithFields(log.Fields{"error": err, "id": id}).Debug("Detail delete")
			}
		default:
			s.notes.Push(fmt.Sprintf("Unknown command %q", line), models.SeverityInfo)
		}
	}
}

func (s *session) editorPage(ctx context.Context, id int64) (*board.Route, error) {
	var editor *board.Editor
	if id == 0 {
		editor = board.NewEditor(s.svc, s.notes, s.nav)
	} else {
		editor = board.NewEditEditor(id, s.svc, s.notes, s.nav)
	}

	form, err := editor.Load(ctx)
	if err != nil {
		r := board.ListRoute()
		return &r, nil
	}

	for {
		var ok bool
		form, ok = s.askForm(ctx, form)
		if !ok {
			r := board.ListRoute()
			return &r, nil
		}

		if _, err := editor.Submit(ctx, form); err == nil {
			// The editor navigated on success
			_, route, ok := s.next(ctx)
			if !ok {
				return nil, nil
			}
			if route == nil {
				r := board.ListRoute()
				route = &r
			}
			return route, nil
		}
		// Keep the form values and ask again
	}
}

// askForm collects the post fields line by line, prefilled with form
func (s *session) askForm(ctx context.Context, form models.Post) (models.Post, bool) {
	fields := []struct {
		label string
		value *string
	}{
		{"Title", &form.Title},
		{"Author", &form.Author},
		{"Content", &form.Content},
	}

	for _, f := range fields {
		f := f
		s.term.show(func() string {
			return s.withNotes(fmt.Sprintf("%s [%s]\n", f.label, *f.value))
		}, formHelp)

		line, ok := s.nextLine(ctx)
		if !ok || line == "." {
			return form, false
		}
		if line != "" {
			*f.value = line
		}
	}
	return form, true
}

// dismiss removes the nth notification as shown, or the oldest when n is 0
func (s *session) dismiss(n int64) {
	items := s.notes.List()
	if n == 0 {
		n = 1
	}
	if n > int64(len(items)) {
		s.term.draw()
		return
	}
	s.notes.Dismiss(items[n-1].Id)
}

func (s *session) confirm(ctx context.Context, question string) (yes bool, ok bool) {
	s.term.show(func() string { return s.withNotes(question + "\n") }, "")
	line, ok := s.nextLine(ctx)
	return strings.EqualFold(line, "y") || strings.EqualFold(line, "yes"), ok
}

// nextLine waits for input only, navigation is left queued
func (s *session) nextLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, open := <-s.lines:
		return line, open
	}
}

func parseCommand(line string) (string, int64) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", 0
	}
	var id int64
	if len(fields) > 1 {
		if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil && n > 0 {
			id = n
		}
	}
	return strings.ToLower(fields[0]), id
}
