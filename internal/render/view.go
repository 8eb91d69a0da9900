package render

import (
	"html/template"
	"time"

	"github.com/dukerupert/referidos/internal/aggregate"
	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/model"
	"github.com/dukerupert/referidos/internal/state"
)

// Page is everything the layout and app templates need.
type Page struct {
	Title     string
	Notice    template.HTML
	CSRFToken string
	// SessionTag identifies this browser's own change notices on /ws.
	SessionTag string

	Screen        state.Screen
	Authenticated bool
	UserName      string
	Busy          bool
	Flash         *FlashView
	LoginEmail    string

	Dashboard  *DashboardView
	Founders   []FounderCard
	MemberList *MemberListView
	Edit       *EditFormView
	Pending    *PendingView
	Activity   []ActivityView

	// RefreshEvery is an htmx trigger interval such as "30s"; empty disables polling.
	RefreshEvery string
	LoadedAt     string
}

type FlashView struct {
	Kind    string
	Message string
	TTLms   int64
}

type DashboardView struct {
	Total             int
	Completed         int
	Pending           int
	FounderCount      int
	CompletionPercent float64
	Founders          []FounderCard
}

type FounderCard struct {
	Name      string
	Count     int
	Completed int
	Limit     int
	Percent   float64
	Full      bool
	Label     string
}

type MemberListView struct {
	Founder string
	Rows    []MemberRow
	Count   int
	Limit   int
	CanAdd  bool
}

type MemberRow struct {
	ID          int64
	Name        string
	IDNumber    string
	Phone       string
	Address     string
	Founder     string
	Complete    bool
	StatusLabel string
	StatusClass string
}

type EditFormView struct {
	Title           string
	Action          string
	Creating        bool
	Fields          model.MemberFields
	Errors          map[string]string
	CompleteOptions []Option
}

type Option struct {
	Value    string
	Label    string
	Selected bool
}

type PendingView struct {
	Rows []MemberRow
}

type ActivityView struct {
	Label      string
	MemberName string
	Founder    string
	Actor      string
	When       string
}

// Input is what Build needs besides the session state.
type Input struct {
	Config     *config.Config
	Notice     template.HTML
	CSRFToken  string
	SessionTag string
	Activity   []model.Activity
	Now        time.Time
}

// Build derives the page view model from a state snapshot. It is pure.
func Build(st state.State, in Input) Page {
	cfg := in.Config
	c := cfg.Classifier()
	limit := cfg.App.MaxMembersPerFounder

	p := Page{
		Title:         cfg.App.Title,
		Notice:        in.Notice,
		CSRFToken:     in.CSRFToken,
		SessionTag:    in.SessionTag,
		Screen:        st.Screen,
		Authenticated: st.Authenticated(),
		UserName:      st.UserName,
		Busy:          st.Busy,
		LoginEmail:    st.Email,
	}
	if st.Flash != nil {
		ttl := st.Flash.Expires.Sub(in.Now).Milliseconds()
		if ttl < 0 {
			ttl = 0
		}
		p.Flash = &FlashView{Kind: string(st.Flash.Kind), Message: st.Flash.Message, TTLms: ttl}
	}
	if !p.Authenticated {
		p.Screen = state.ScreenLogin
		return p
	}

	cards := founderCards(st.Members, c, limit)
	stats := aggregate.ComputeStats(st.Members, c)
	p.Dashboard = &DashboardView{
		Total:             stats.Total,
		Completed:         stats.Completed,
		Pending:           stats.Pending,
		FounderCount:      stats.FounderCount,
		CompletionPercent: percentOf(stats.Completed, stats.Total),
		Founders:          cards,
	}
	p.Founders = cards
	p.Activity = activityViews(in.Activity)
	if !st.LoadedAt.IsZero() {
		p.LoadedAt = st.LoadedAt.Format("15:04:05")
	}

	if st.HasOverlay(state.OverlayMemberList) && st.SelectedFounder != "" {
		group := aggregate.MembersOf(st.Members, st.SelectedFounder)
		p.MemberList = &MemberListView{
			Founder: st.SelectedFounder,
			Rows:    rows(group, cfg, c),
			Count:   len(group),
			Limit:   limit,
			CanAdd:  aggregate.CanAdd(st.Members, st.SelectedFounder, limit),
		}
	}
	if st.HasOverlay(state.OverlayPendingList) {
		p.Pending = &PendingView{Rows: rows(aggregate.Pending(st.Members, c), cfg, c)}
	}
	if st.HasOverlay(state.OverlayMemberEdit) && st.Edit != nil {
		p.Edit = editForm(st.Edit, cfg)
	}

	if cfg.UI.AutoRefresh > 0 && p.Edit == nil {
		p.RefreshEvery = refreshTrigger(cfg.UI.AutoRefresh)
	}
	return p
}

func founderCards(members []model.Member, c model.Classifier, limit int) []FounderCard {
	summaries := aggregate.FounderSummaries(members, c, limit)
	cards := make([]FounderCard, 0, len(summaries))
	for _, s := range summaries {
		label := "Disponible"
		if s.Full {
			label = "Completado"
		}
		cards = append(cards, FounderCard{
			Name:      s.Name,
			Count:     s.Count,
			Completed: s.Completed,
			Limit:     limit,
			Percent:   s.Percent,
			Full:      s.Full,
			Label:     label,
		})
	}
	return cards
}

func rows(members []model.Member, cfg *config.Config, c model.Classifier) []MemberRow {
	out := make([]MemberRow, 0, len(members))
	for _, m := range members {
		status := c.Parse(m.Complete)
		out = append(out, MemberRow{
			ID:          m.ID,
			Name:        m.Name,
			IDNumber:    cfg.FormatValue(config.FieldIDNumber, m.IDNumber),
			Phone:       cfg.FormatValue(config.FieldPhone, m.Phone),
			Address:     m.Address,
			Founder:     m.Founder,
			Complete:    status == model.Complete,
			StatusLabel: status.Label(),
			StatusClass: status.String(),
		})
	}
	return out
}

func editForm(f *state.EditForm, cfg *config.Config) *EditFormView {
	v := &EditFormView{
		Title:    "Editar Socio",
		Action:   "/members/" + itoa(f.MemberID),
		Creating: f.Creating(),
		Fields:   f.Fields,
		Errors:   f.Errors,
	}
	if v.Creating {
		v.Title = "Añadir Nuevo Socio"
		v.Action = "/members"
	}
	v.CompleteOptions = completeOptions(f.Fields.Complete, cfg)
	return v
}

// completeOptions offers the canonical yes and no literals. A stored value
// outside both is kept as its own option so saving does not rewrite it.
func completeOptions(current string, cfg *config.Config) []Option {
	yes := cfg.Classifier().CompleteValue()
	no := "No"
	if v := cfg.App.CompleteValues.Incomplete; len(v) > 0 {
		no = v[0]
	}
	opts := []Option{
		{Value: no, Label: "No", Selected: current == no},
		{Value: yes, Label: "Sí", Selected: current == yes},
	}
	if current != "" && current != yes && current != no {
		opts = append(opts, Option{Value: current, Label: current, Selected: true})
	}
	return opts
}

func activityViews(entries []model.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(entries))
	for _, a := range entries {
		out = append(out, ActivityView{
			Label:      activityLabel(a.Action),
			MemberName: a.MemberName,
			Founder:    a.Founder,
			Actor:      a.Actor,
			When:       a.CreatedAt.Local().Format("02/01/2006 15:04"),
		})
	}
	return out
}

func activityLabel(action string) string {
	switch action {
	case model.ActionCreated:
		return "Socio añadido"
	case model.ActionUpdated:
		return "Socio actualizado"
	case model.ActionCompleted:
		return "Proceso completado"
	default:
		return action
	}
}

func percentOf(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func refreshTrigger(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return itoa(secs) + "s"
}
