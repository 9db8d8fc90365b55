package classifier

import "fmt"

// Category is a topical label attached to knowledge chunks and queries.
type Category string

const (
	Background Category = "background"
	Contact    Category = "contact"
	Education  Category = "education"
	Experience Category = "experience"
	Skills     Category = "skills"
	Projects   Category = "projects"
	Personal   Category = "personal"
	Calendar   Category = "calendar"
	General    Category = "general"
)

// Info describes a category and what the pipeline may do with it.
type Info struct {
	Name             Category
	Description      string
	RetrievalEnabled bool
	ToolsEnabled     bool
}

// Registry is the immutable category set, in a fixed order.
type Registry struct {
	order []Category
	info  map[Category]Info
}

// DefaultRegistry returns the built-in category set.
func DefaultRegistry() *Registry {
	return NewRegistry([]Info{
		{Name: Background, RetrievalEnabled: true,
			Description: "Personal background, biography, identity, life story, personal journey, origins, upbringing, personal history"},
		{Name: Contact, RetrievalEnabled: true,
			Description: "Contact information, ways to reach me, email, phone number, social media, communication details, messaging, address, how to get in touch"},
		{Name: Education, RetrievalEnabled: true,
			Description: "Academic history, schooling, university, degrees, certifications, scholarships, courses, study experience, learning, educational achievements"},
		{Name: Experience, RetrievalEnabled: true,
			Description: "Professional experience, work history, roles, job responsibilities, employment, career achievements, companies, projects done at work, professional background"},
		{Name: Skills, RetrievalEnabled: true,
			Description: "Technical skills, expertise, tools, frameworks, programming languages, technologies, capabilities, knowledge areas, professional skills"},
		{Name: Projects, RetrievalEnabled: true,
			Description: "Projects, portfolio work, showcases, software applications, contributions, demonstrated work, personal or professional projects"},
		{Name: Personal, RetrievalEnabled: true,
			Description: "Casual chat, conversations, opinions, preferences, personality traits, hobbies, interests, personal anecdotes, informal interaction"},
		{Name: Calendar, RetrievalEnabled: true, ToolsEnabled: true,
			Description: "Scheduling, meetings, appointments, availability, calendar events, planning, dates, reminders, time management"},
		{Name: General,
			Description: "Default category for uncategorized queries, generic questions, miscellaneous topics, or when no other category matches"},
	})
}

// NewRegistry builds a registry from infos, keeping their order.
func NewRegistry(infos []Info) *Registry {
	r := &Registry{info: make(map[Category]Info, len(infos))}
	for _, i := range infos {
		if _, dup := r.info[i.Name]; dup {
			continue
		}
		r.order = append(r.order, i.Name)
		r.info[i.Name] = i
	}
	return r
}

// All returns every category in registry order.
func (r *Registry) All() []Category {
	return append([]Category(nil), r.order...)
}

// Lookup returns the info for c.
func (r *Registry) Lookup(c Category) (Info, bool) {
	i, ok := r.info[c]
	return i, ok
}

// Parse converts a label to a registered category.
func (r *Registry) Parse(label string) (Category, error) {
	c := Category(label)
	if _, ok := r.info[c]; !ok {
		return "", fmt.Errorf("unknown category %q", label)
	}
	return c, nil
}

// RetrievalCategories keeps the categories whose chunks may be retrieved.
func (r *Registry) RetrievalCategories(cats []Category) []Category {
	var out []Category
	for _, c := range cats {
		if i, ok := r.info[c]; ok && i.RetrievalEnabled {
			out = append(out, c)
		}
	}
	return out
}
