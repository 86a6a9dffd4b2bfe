package assignment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/prompt"
)

var (
	// errors
	ErrNotFound        = errors.New("assignment not found")
	ErrVariantNotFound = errors.New("variant not found")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// QueryAssignments applies AND operation on available QueryFilter fields.
		QueryAssignments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error

		// UpsertVariant replaces the variant of (v.AssignmentID, v.Persona) if there is one.
		UpsertVariant(ctx context.Context, v Variant) (Variant, error)
		QueryVariants(ctx context.Context, assignmentID string) ([]Variant, error)
		GetVariant(ctx context.Context, assignmentID string, p persona.Persona) (Variant, error)
		UpdateVariant(ctx context.Context, v Variant) (Variant, error)
		DeleteVariant(ctx context.Context, assignmentID string, p persona.Persona) error
	}

	// Roster lists the students of a class.
	Roster interface {
		StudentIDs(ctx context.Context, classID string) ([]string, error)
	}

	// Profiles reads learner profiles.
	Profiles interface {
		Get(ctx context.Context, userID string) (profile.Profile, error)
		Personas(ctx context.Context, userIDs []string) ([]persona.Persona, error)
	}

	Service struct {
		repo      Repository
		llm       core.LLMService
		roster    Roster
		profiles  Profiles
		extractor *extract.Extractor
		model     string
	}
)

func NewService(
	repo Repository, llm core.LLMService, roster Roster, profiles Profiles, extractor *extract.Extractor, conf *core.Config,
) *Service {
	return &Service{
		repo:      repo,
		llm:       llm,
		roster:    roster,
		profiles:  profiles,
		extractor: extractor,
		model:     conf.LLM.Model,
	}
}

func (svc *Service) Create(ctx context.Context, teacherID string, na NewAssignment) (Assignment, error) {
	res, err := svc.extractor.FromText(na.Content)
	if err != nil {
		return Assignment{}, err
	}
	format := na.SourceFormat
	if format == "" {
		format = string(extract.Text)
	}
	maxScore := na.MaxScore
	if maxScore == 0 {
		maxScore = DefaultMaxScore
	}

	now := time.Now().UTC()
	return svc.repo.CreateAssignment(ctx, Assignment{
		ClassID:        na.ClassID,
		TeacherID:      teacherID,
		Title:          na.Title,
		Instructions:   na.Instructions,
		Content:        res.Text,
		SourceFilename: na.SourceFilename,
		SourceFormat:   format,
		DueAt:          utcPtr(na.DueAt),
		MaxScore:       maxScore,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Assignment, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryAssignments(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Assignment, error) {
	if id == "" {
		return Assignment{}, ErrNotFound
	}
	return svc.repo.GetAssignment(ctx, id)
}

// Update applies ua (already validated) to a.
func (svc *Service) Update(ctx context.Context, a Assignment, ua UpdateAssignment) (Assignment, error) {
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Instructions != nil {
		a.Instructions = *ua.Instructions
	}
	if ua.Content != nil {
		res, err := svc.extractor.FromText(*ua.Content)
		if err != nil {
			return Assignment{}, err
		}
		a.Content = res.Text
	}
	if ua.ClearDueAt {
		a.DueAt = nil
	} else if ua.DueAt != nil {
		a.DueAt = utcPtr(ua.DueAt)
	}
	if ua.MaxScore != nil {
		a.MaxScore = *ua.MaxScore
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAssignment(ctx, id)
}

// TargetPersonas returns the personas to remodel a for: requested ones when given, else those of the
// students enrolled in a's class, else Generic.
func (svc *Service) TargetPersonas(ctx context.Context, a Assignment, requested []string) ([]persona.Persona, error) {
	if len(requested) > 0 {
		return persona.ParseList(requested)
	}
	studentIDs, err := svc.roster.StudentIDs(ctx, a.ClassID)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	personas, err := svc.profiles.Personas(ctx, studentIDs)
	if err != nil {
		return nil, err
	}
	if len(personas) == 0 {
		return []persona.Persona{persona.Generic}, nil
	}
	return personas, nil
}

// Remodel generates and stores one variant of a per persona, in order.
// It stops at the first failure; variants stored before it are kept.
func (svc *Service) Remodel(ctx context.Context, a Assignment, personas []persona.Persona) ([]Variant, error) {
	variants := make([]Variant, 0, len(personas))
	for _, p := range personas {
		res, err := svc.remodel(ctx, prompt.RemodelInput{
			Title:          a.Title,
			Instructions:   a.Instructions,
			Content:        a.Content,
			Persona:        p,
			Accommodations: p.Accommodations(),
		})
		if err != nil {
			return variants, errors.Wrapf(err, "remodeling for %s", p)
		}

		now := time.Now().UTC()
		v, err := svc.repo.UpsertVariant(ctx, Variant{
			AssignmentID:   a.ID,
			Persona:        p,
			Title:          res.Title,
			Content:        res.Content,
			Accommodations: res.Accommodations,
			TeacherNotes:   res.TeacherNotes,
			Model:          svc.model,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return variants, errors.Wrapf(err, "storing %s variant", p)
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// Preview remodels pasted text without storing anything.
func (svc *Service) Preview(ctx context.Context, pr PreviewRemodel) ([]Variant, error) {
	res, err := svc.extractor.FromText(pr.Content)
	if err != nil {
		return nil, err
	}

	in := prompt.RemodelInput{Title: pr.Title, Instructions: pr.Instructions, Content: res.Text}
	personas, err := persona.ParseList(pr.Personas)
	if err != nil {
		return nil, err
	}
	var studentProfile *profile.Profile
	if pr.StudentID != "" {
		p, err := svc.profiles.Get(ctx, pr.StudentID)
		if err != nil {
			return nil, err
		}
		studentProfile = &p
		if len(personas) == 0 {
			personas = []persona.Persona{p.Persona}
		}
	}
	if len(personas) == 0 {
		personas = []persona.Persona{persona.Generic}
	}

	variants := make([]Variant, 0, len(personas))
	for _, p := range personas {
		in.Persona = p
		in.Accommodations = p.Accommodations()
		if studentProfile != nil && studentProfile.Persona == p {
			in.Accommodations = mergeAccommodations(in.Accommodations, studentProfile.Accommodations)
			in.Notes = studentProfile.Notes
			in.GradeLevel = studentProfile.GradeLevel
		} else {
			in.Notes, in.GradeLevel = "", ""
		}

		rem, err := svc.remodel(ctx, in)
		if err != nil {
			return nil, errors.Wrapf(err, "remodeling for %s", p)
		}
		variants = append(variants, Variant{
			Persona:        p,
			Title:          rem.Title,
			Content:        rem.Content,
			Accommodations: rem.Accommodations,
			TeacherNotes:   rem.TeacherNotes,
			Model:          svc.model,
		})
	}
	return variants, nil
}

func (svc *Service) remodel(ctx context.Context, in prompt.RemodelInput) (prompt.RemodelResult, error) {
	req, err := prompt.BuildRemodel(in)
	if err != nil {
		return prompt.RemodelResult{}, errors.Wrap(err, "building prompt")
	}
	raw, err := svc.llm.Complete(ctx, req)
	if err != nil {
		return prompt.RemodelResult{}, err
	}
	return prompt.ParseRemodel(raw)
}

func (svc *Service) Variants(ctx context.Context, assignmentID string) ([]Variant, error) {
	return svc.repo.QueryVariants(ctx, assignmentID)
}

func (svc *Service) GetVariant(ctx context.Context, assignmentID string, p persona.Persona) (Variant, error) {
	return svc.repo.GetVariant(ctx, assignmentID, p)
}

// UpdateVariant applies uv (already validated) to v.
func (svc *Service) UpdateVariant(ctx context.Context, v Variant, uv UpdateVariant) (Variant, error) {
	if uv.Title != nil {
		v.Title = *uv.Title
	}
	if uv.Content != nil {
		v.Content = *uv.Content
	}
	if uv.Accommodations != nil {
		v.Accommodations = uv.Accommodations
	}
	if uv.TeacherNotes != nil {
		v.TeacherNotes = *uv.TeacherNotes
	}
	v.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateVariant(ctx, v)
}

func (svc *Service) DeleteVariant(ctx context.Context, assignmentID string, p persona.Persona) error {
	return svc.repo.DeleteVariant(ctx, assignmentID, p)
}

// ViewFor returns a as studentID reads it: their persona's variant, else the generic variant,
// else the original text.
func (svc *Service) ViewFor(ctx context.Context, a Assignment, studentID string) (View, error) {
	prof, err := svc.profiles.Get(ctx, studentID)
	if err != nil {
		return View{}, err
	}

	candidates := []persona.Persona{prof.Persona}
	if prof.Persona != persona.Generic {
		candidates = append(candidates, persona.Generic)
	}
	for _, p := range candidates {
		v, err := svc.repo.GetVariant(ctx, a.ID, p)
		if err == nil {
			return newView(a, prof.Persona, &v), nil
		}
		if errors.Cause(err) != ErrVariantNotFound {
			return View{}, err
		}
	}
	return newView(a, prof.Persona, nil), nil
}

func mergeAccommodations(base, extra []string) []string {
	all := make([]string, 0, len(base)+len(extra))
	all = append(all, base...)
	all = append(all, extra...)
	return core.CleanStrings(all)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
