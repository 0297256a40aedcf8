// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"doit/internal/location"
	"doit/internal/service"
	"doit/internal/views"
)

const (
	// Separator is the separator line between sections.
	Separator = "------------"

	timeLayout = "2006-01-02 15:04"
)

// FormatTask formats a task line for a listing.
// Format: "{ID}  {STATUS:<9}  {CATEGORY:<10}  {TITLE}[  {BUDGET} EUR]\n"
func FormatTask(w io.Writer, task service.Task) {
	line := fmt.Sprintf("%s  %-9s  %-10s  %s", task.ID, task.Status, orDash(task.Category), normalizeTitle(task.Title))
	if task.Budget != nil {
		line += fmt.Sprintf("  %.2f EUR", *task.Budget)
	}
	fmt.Fprintln(w, line)
}

// FormatTaskDetail formats a task with its applications and the actions
// available to viewer.
func FormatTaskDetail(w io.Writer, task service.Task, viewer string) {
	fmt.Fprintln(w, Separator)
	fmt.Fprintln(w, normalizeTitle(task.Title))
	fmt.Fprintln(w, Separator)
	fmt.Fprintf(w, "id:        %s\n", task.ID)
	fmt.Fprintf(w, "status:    %s\n", task.Status)
	fmt.Fprintf(w, "category:  %s\n", orDash(task.Category))
	fmt.Fprintf(w, "location:  %s\n", locationText(task))
	if task.Budget != nil {
		fmt.Fprintf(w, "budget:    %.2f EUR\n", *task.Budget)
	}
	if task.Deadline != nil && !task.Deadline.IsZero() {
		fmt.Fprintf(w, "deadline:  %s\n", task.Deadline.Format("2006-01-02"))
	}
	if task.PreferredTime != "" {
		fmt.Fprintf(w, "time:      %s\n", task.PreferredTime)
	}
	fmt.Fprintf(w, "creator:   %s\n", task.CreatorUID)
	if task.TaskerUID != "" {
		fmt.Fprintf(w, "tasker:    %s\n", task.TaskerUID)
	}
	if d := strings.TrimSpace(task.Description); d != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, d)
	}
	if len(task.Images) > 0 {
		fmt.Fprintln(w)
		for _, img := range task.Images {
			fmt.Fprintf(w, "image: %s\n", img)
		}
	}
	if len(task.Applications) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "applications:")
		for _, a := range task.Applications {
			FormatApplication(w, a)
		}
	}
	if acts := actionNames(views.ActionsFor(task, viewer)); len(acts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "actions: %s\n", strings.Join(acts, ", "))
	}
}

// FormatApplication formats an application line.
func FormatApplication(w io.Writer, a service.Application) {
	who := a.ApplicantName
	if who == "" {
		who = a.ApplicantUID
	}
	line := fmt.Sprintf("    %s  %-8s  %s", a.ID, a.Status, who)
	if a.OfferedPrice != nil {
		line += fmt.Sprintf("  %.2f EUR", *a.OfferedPrice)
	}
	if m := oneLine(a.Message); m != "" {
		line += "  " + m
	}
	fmt.Fprintln(w, line)
}

// FormatChat formats a conversation line.
func FormatChat(w io.Writer, c service.Chat, viewer string) {
	other := "-"
	for _, p := range c.Participants {
		if p != viewer {
			other = p
			break
		}
	}
	fmt.Fprintf(w, "%s  task %s  with %s  %s\n", c.ID, c.TaskID, other, stamp(c.LastMessageAt))
}

// FormatMessage formats a chat message. The viewer's own messages are
// attributed to "me".
func FormatMessage(w io.Writer, m service.Message, viewer string) {
	who := m.SenderUID
	if who == viewer {
		who = "me"
	}
	body := oneLine(m.Content)
	if m.MessageType == service.MessageImage || (body == "" && m.ImageURL != "") {
		body = "[image] " + m.ImageURL
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", stamp(m.CreatedAt), who, body)
}

// FormatNotification formats a notification line. Unread items are marked
// with "*".
func FormatNotification(w io.Writer, n service.Notification) {
	mark := " "
	if !n.Read {
		mark = "*"
	}
	line := fmt.Sprintf("%s %s  %s", mark, n.ID, normalizeTitle(n.Title))
	if m := oneLine(n.Message); m != "" {
		line += ": " + m
	}
	fmt.Fprintln(w, line)
}

// FormatProfile formats a profile with its rating.
func FormatProfile(w io.Writer, p service.Profile, stats service.ReviewStats) {
	name := p.DisplayName
	if strings.TrimSpace(name) == "" {
		name = p.UID
	}
	fmt.Fprintln(w, Separator)
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, Separator)
	fmt.Fprintf(w, "uid:        %s\n", p.UID)
	if p.Bio != "" {
		fmt.Fprintf(w, "bio:        %s\n", oneLine(p.Bio))
	}
	if p.Location != "" {
		fmt.Fprintf(w, "location:   %s\n", p.Location)
	}
	if p.AvatarURL != "" {
		fmt.Fprintf(w, "avatar:     %s\n", p.AvatarURL)
	}
	fmt.Fprintf(w, "posted:     %d\n", p.PostedTasks)
	fmt.Fprintf(w, "completed:  %d\n", p.CompletedTasks)
	fmt.Fprintf(w, "rating:     %.1f (%d reviews)\n", stats.AverageRating, stats.TotalReviews)
}

// FormatReview formats a received review.
func FormatReview(w io.Writer, r service.Review) {
	line := fmt.Sprintf("%s%s  from %s", strings.Repeat("*", r.Rating), strings.Repeat(".", max(0, 5-r.Rating)), r.ReviewerID)
	if c := oneLine(r.Comment); c != "" {
		line += "  " + c
	}
	fmt.Fprintln(w, line)
}

// FormatCandidate formats an autocomplete suggestion.
func FormatCandidate(w io.Writer, num int, c location.Candidate) {
	fmt.Fprintf(w, "%4d  %s\n", num, c.Description)
}

// FormatPlace formats a resolved address.
func FormatPlace(w io.Writer, p location.Place) {
	if p.HasCoordinates() {
		fmt.Fprintf(w, "%s (%.6f, %.6f)\n", p.Address, *p.Lat, *p.Lon)
		return
	}
	fmt.Fprintln(w, p.Address)
}

func actionNames(a views.Actions) []string {
	var out []string
	if a.Apply {
		out = append(out, "apply")
	}
	if a.Accept {
		out = append(out, "accept")
	}
	if a.Chat {
		out = append(out, "chat")
	}
	if a.Complete {
		out = append(out, "complete")
	}
	if a.Review {
		out = append(out, "review")
	}
	return out
}

func locationText(t service.Task) string {
	loc := orDash(t.Location)
	if t.Latitude != nil && t.Longitude != nil {
		loc += fmt.Sprintf(" (%.6f, %.6f)", *t.Latitude, *t.Longitude)
	}
	return loc
}

func stamp(t service.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// normalizeTitle normalizes a title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = oneLine(title)
	if title == "" {
		return "(untitled)"
	}
	return title
}
