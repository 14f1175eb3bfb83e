package stages

import (
	"fmt"
	"strings"

	"github.com/mpataki/trek/internal/models"
)

// cityPlan is a hand-written itinerary for a well-known destination. Days
// beyond len(days) repeat the first day's activities.
type cityPlan struct {
	themes [maxScheduledDays]dayTheme
	days   [][]models.Activity
	notes  []string
}

var cityPlans = map[string]cityPlan{
	"barcelona": {
		themes: [maxScheduledDays]dayTheme{
			{"Gaudí's Architectural Wonders", "Architecture & Art", [2]string{"Eixample", "Gràcia"}},
			{"Gothic Quarter & Historic Barcelona", "History & Culture", [2]string{"Barrio Gótico", "El Born"}},
			{"Beach, Markets & Local Life", "Local Life & Relaxation", [2]string{"Barceloneta", "El Raval"}},
			{"Montjuïc & Panoramic Views", "Nature & Views", [2]string{"Montjuïc", "Poble Sec"}},
			{"Food Tour & Tapas Culture", "Culinary Adventure", [2]string{"Gràcia", "Sant Antoni"}},
		},
		days: [][]models.Activity{
			{
				{Time: "09:00", Activity: "Sagrada Familia Guided Tour", Type: "cultural", SpecificPlace: "Basílica de la Sagrada Família",
					Address: "Carrer de Mallorca, 401, 08013 Barcelona", Description: "Gaudí's masterpiece basilica with intricate facades and stunning interior light play",
					Duration: "2 hours", Cost: "$35", BookingRequired: true,
					Tips: []string{"Book skip-the-line tickets in advance", "Visit early to avoid crowds", "Audio guide highly recommended"}},
				{Time: "12:00", Activity: "Lunch at Casa Calvet Restaurant", Type: "dining", SpecificPlace: "Casa Calvet",
					Address: "Carrer de Casp, 48, 08010 Barcelona", Description: "Michelin-starred restaurant in a Gaudí-designed building serving modern Catalan cuisine",
					Duration: "1.5 hours", Cost: "$65",
					Tips: []string{"Try the tasting menu", "Reservations essential", "Dress code: smart casual"}},
				{Time: "15:00", Activity: "Park Güell Exploration", Type: "sightseeing", SpecificPlace: "Park Güell",
					Address: "Carrer d'Olot, s/n, 08024 Barcelona", Description: "Whimsical park with colorful mosaics, unique architecture, and city views",
					Duration: "2.5 hours", Cost: "$15", BookingRequired: true,
					Tips: []string{"Wear comfortable shoes", "Best photos at the mosaic bench", "Free areas available outside the monument zone"}},
				{Time: "19:30", Activity: "Sunset at Bunkers del Carmel", Type: "leisure", SpecificPlace: "Bunkers del Carmel",
					Address: "Carrer de Marià Labèrnia, s/n, 08032 Barcelona", Description: "Former anti-aircraft bunkers offering 360° panoramic views of Barcelona",
					Duration: "1.5 hours", Cost: "Free",
					Tips: []string{"Bring water and snacks", "Arrive 30 minutes before sunset", "Can be crowded on weekends"}},
			},
			{
				{Time: "09:30", Activity: "Barcelona Cathedral & Cloister", Type: "cultural", SpecificPlace: "Cathedral of the Holy Cross and Saint Eulalia",
					Address: "Pla de la Seu, s/n, 08002 Barcelona", Description: "Gothic cathedral with beautiful cloister, rooftop access, and 13 white geese",
					Duration: "1.5 hours", Cost: "$8",
					Tips: []string{"Free entry during prayer times", "Rooftop offers great views", "Look for the 13 geese in the cloister"}},
				{Time: "11:30", Activity: "Picasso Museum Visit", Type: "cultural", SpecificPlace: "Museu Picasso",
					Address: "Carrer Montcada, 15-23, 08003 Barcelona", Description: "Extensive collection of Picasso's early works in beautiful medieval palaces",
					Duration: "2 hours", Cost: "$14", BookingRequired: true,
					Tips: []string{"Free first Sunday of each month", "Audio guide available", "Photography not allowed"}},
				{Time: "14:00", Activity: "Lunch at Cal Pep Tapas Bar", Type: "dining", SpecificPlace: "Cal Pep",
					Address: "Plaça de les Olles, 8, 08003 Barcelona", Description: "Legendary tapas bar known for fresh seafood and standing-room-only atmosphere",
					Duration: "1 hour", Cost: "$45",
					Tips: []string{"No reservations, arrive early", "Try the fried artichokes", "Cash only"}},
				{Time: "16:00", Activity: "El Born Cultural Center", Type: "cultural", SpecificPlace: "El Born Centre de Cultura i Memòria",
					Address: "Plaça Comercial, 12, 08003 Barcelona", Description: "Archaeological site and cultural center in a beautiful iron market building",
					Duration: "1.5 hours", Cost: "$6",
					Tips: []string{"See the preserved medieval streets", "Free on Sundays after 3pm", "Interactive exhibits available"}},
				{Time: "18:30", Activity: "Cocktails at Paradiso", Type: "leisure", SpecificPlace: "Paradiso",
					Address: "Carrer de Rera Palau, 4, 08003 Barcelona", Description: "Hidden speakeasy behind a pastrami shop",
					Duration: "2 hours", Cost: "$18 per cocktail", BookingRequired: true,
					Tips: []string{"Enter through the fridge door", "Reservations essential", "Try their signature cocktails"}},
			},
			{
				{Time: "08:30", Activity: "La Boquería Market Food Tour", Type: "cultural", SpecificPlace: "Mercat de la Boquería",
					Address: "La Rambla, 91, 08001 Barcelona", Description: "Famous food market with fresh produce, jamón, and local delicacies",
					Duration: "2 hours", Cost: "$25",
					Tips: []string{"Avoid peak tourist hours", "Try fresh fruit juices", "Sample jamón ibérico"}},
				{Time: "11:00", Activity: "Beach Time at Barceloneta", Type: "leisure", SpecificPlace: "Platja de la Barceloneta",
					Address: "Passeig Marítim de la Barceloneta, 08003 Barcelona", Description: "Barcelona's most famous beach with golden sand and beach bars",
					Duration: "3 hours", Cost: "Free",
					Tips: []string{"Rent umbrellas and chairs", "Watch for pickpockets", "Try paella at a chiringuito"}},
				{Time: "14:30", Activity: "Seafood Lunch at Can Majó", Type: "dining", SpecificPlace: "Can Majó",
					Address: "Carrer de l'Almirall Aixada, 23, 08003 Barcelona", Description: "Traditional seafood restaurant with beachfront terrace and excellent paella",
					Duration: "1.5 hours", Cost: "$55",
					Tips: []string{"Try the black rice paella", "Reservations recommended", "Great sea views from terrace"}},
				{Time: "17:00", Activity: "Cable Car to Montjuïc", Type: "transport", SpecificPlace: "Telefèric de Montjuïc",
					Address: "Avinguda Miramar, 30, 08038 Barcelona", Description: "Scenic cable car ride offering spectacular views of the city and coastline",
					Duration: "30 minutes", Cost: "$13",
					Tips: []string{"Best views on clear days", "Can be windy", "Combined tickets available"}},
				{Time: "18:00", Activity: "Magic Fountain Show", Type: "leisure", SpecificPlace: "Font Màgica de Montjuïc",
					Address: "Plaça de Carles Buïgas, 1, 08038 Barcelona", Description: "Water, light, and music show at the foot of Montjuïc",
					Duration: "1 hour", Cost: "Free",
					Tips: []string{"Shows every 30 minutes", "Arrive early for good spots", "Bring a light jacket"}},
			},
		},
		notes: []string{
			"Comfortable walking shoes essential",
			"Many attractions offer student/senior discounts",
			"Siesta time: 2-5 PM many shops close",
			"Dinner typically starts after 9 PM",
		},
	},
	"tokyo": {
		themes: [maxScheduledDays]dayTheme{
			{"Traditional Tokyo: Temples & Gardens", "Culture & Tradition", [2]string{"Asakusa", "Ueno"}},
			{"Modern Tokyo: Shibuya & Harajuku", "Modern Culture & Fashion", [2]string{"Shibuya", "Harajuku"}},
			{"Tsukiji Market & Ginza Luxury", "Food & Shopping", [2]string{"Tsukiji", "Ginza"}},
			{"Otaku Culture: Akihabara & Anime", "Pop Culture", [2]string{"Akihabara", "Ikebukuro"}},
			{"Day Trip to Mount Fuji", "Nature & Adventure", [2]string{"Kawaguchi-ko", "Hakone"}},
		},
		days: [][]models.Activity{
			{
				{Time: "08:00", Activity: "Senso-ji Temple Morning Visit", Type: "cultural", SpecificPlace: "Senso-ji Temple",
					Address: "2-3-1 Asakusa, Taito City, Tokyo 111-0032", Description: "Tokyo's oldest temple with traditional architecture and bustling Nakamise shopping street",
					Duration: "2 hours", Cost: "Free",
					Tips: []string{"Visit early to avoid crowds", "Try traditional snacks on Nakamise-dori", "Purify hands and mouth at the fountain"}},
				{Time: "11:00", Activity: "Tempura at Daikokuya", Type: "dining", SpecificPlace: "Daikokuya Tempura",
					Address: "1-38-10 Asakusa, Taito City, Tokyo 111-0032", Description: "Historic tempura restaurant serving crispy tempura since 1887",
					Duration: "1 hour", Cost: "$35",
					Tips: []string{"Try the tendon (tempura rice bowl)", "Cash only", "Popular with locals"}},
				{Time: "13:00", Activity: "Ueno Park & Tokyo National Museum", Type: "cultural", SpecificPlace: "Tokyo National Museum",
					Address: "13-9 Uenokoen, Taito City, Tokyo 110-8712", Description: "Japan's largest collection of cultural artifacts including samurai swords and Buddhist art",
					Duration: "2.5 hours", Cost: "$7",
					Tips: []string{"Free on International Museum Day", "Beautiful cherry blossoms in spring", "Audio guide available"}},
				{Time: "16:30", Activity: "Traditional Tea Ceremony", Type: "cultural", SpecificPlace: "Urasenke Foundation",
					Address: "Omotesenke Fushin-an, Kamigyo Ward, Kyoto", Description: "Authentic tea ceremony experience learning the way of tea",
					Duration: "1.5 hours", Cost: "$45", BookingRequired: true,
					Tips: []string{"Wear comfortable clothes", "Remove shoes", "Learn proper etiquette"}},
				{Time: "19:00", Activity: "Dinner in Omoide Yokocho", Type: "dining", SpecificPlace: "Omoide Yokocho (Memory Lane)",
					Address: "1-2 Nishishinjuku, Shinjuku City, Tokyo 160-0023", Description: "Narrow alleyways with tiny yakitori stalls and authentic atmosphere",
					Duration: "2 hours", Cost: "$40",
					Tips: []string{"Very small spaces", "Cash only", "Try different stalls", "Bow when entering"}},
			},
			{
				{Time: "09:00", Activity: "Shibuya Crossing Experience", Type: "sightseeing", SpecificPlace: "Shibuya Crossing",
					Address: "Shibuya City, Tokyo 150-0043", Description: "World's busiest pedestrian crossing with up to 3,000 people crossing at once",
					Duration: "1 hour", Cost: "Free",
					Tips: []string{"Best view from the cafes overlooking the crossing", "Rush hours are most impressive", "Take photos from the observation deck"}},
				{Time: "10:30", Activity: "Harajuku Fashion District", Type: "shopping", SpecificPlace: "Takeshita Street",
					Address: "Takeshita-dori, Shibuya City, Tokyo 150-0001", Description: "Colorful street famous for youth fashion, cosplay, and quirky shops",
					Duration: "2 hours", Cost: "$30",
					Tips: []string{"Try rainbow cotton candy", "Look for unique fashion items", "Street performers on weekends"}},
				{Time: "13:00", Activity: "Lunch at Kawaii Monster Cafe", Type: "dining", SpecificPlace: "Kawaii Monster Cafe",
					Address: "4F YM Square Bldg, 4-31-10 Jingumae, Shibuya City, Tokyo", Description: "Colorful themed cafe with monster decorations",
					Duration: "1.5 hours", Cost: "$25", BookingRequired: true,
					Tips: []string{"Very colorful and loud", "Great for photos", "Unique themed dishes"}},
				{Time: "15:30", Activity: "Meiji Shrine Visit", Type: "cultural", SpecificPlace: "Meiji Shrine",
					Address: "1-1 Kamizono-cho, Shibuya City, Tokyo 151-8557", Description: "Peaceful Shinto shrine dedicated to Emperor Meiji, surrounded by forest",
					Duration: "1.5 hours", Cost: "Free",
					Tips: []string{"Write wishes on ema wooden plaques", "Witness traditional wedding ceremonies", "Peaceful contrast to busy Harajuku"}},
				{Time: "18:00", Activity: "Robot Restaurant Show", Type: "leisure", SpecificPlace: "Robot Restaurant",
					Address: "1-7-1 Kabukicho, Shinjuku City, Tokyo 160-0021", Description: "Robot show with lights, music, and mechanical mayhem",
					Duration: "1.5 hours", Cost: "$65", BookingRequired: true,
					Tips: []string{"Very loud and flashy", "No actual restaurant", "Unique Tokyo experience"}},
			},
		},
		notes: []string{
			"JR Pass recommended for train travel",
			"Bow when greeting people",
			"Remove shoes when entering homes/temples",
			"Cash is still king in many places",
			"Download Google Translate with camera feature",
		},
	},
}

// lookupCityPlan matches city against the hand-written itineraries by name.
func lookupCityPlan(city string) (cityPlan, bool) {
	lower := strings.ToLower(city)
	for name, plan := range cityPlans {
		if strings.Contains(lower, name) {
			return plan, true
		}
	}
	return cityPlan{}, false
}

// citySchedule returns the hand-written itinerary for city when there is one,
// otherwise a generic one shaped around the local insights.
func citySchedule(city, start string, days, daily int, insights []models.LocalInsight) []models.DaySchedule {
	plan, ok := lookupCityPlan(city)
	if !ok {
		return genericSchedule(city, start, days, daily, insights)
	}

	n := min(days, maxScheduledDays)
	schedule := make([]models.DaySchedule, 0, n)
	for i := 0; i < n; i++ {
		th := plan.themes[i]
		acts := plan.days[0]
		if i < len(plan.days) {
			acts = plan.days[i]
		}
		schedule = append(schedule, models.DaySchedule{
			Day:           i + 1,
			Date:          addDays(start, i),
			Title:         th.title,
			Theme:         th.theme,
			Activities:    append([]models.Activity(nil), acts...),
			DailyBudget:   fmt.Sprintf("$%d", daily),
			Neighborhoods: th.neighborhoods[:],
			Highlights:    highlights(acts),
			Notes:         append([]string(nil), plan.notes...),
		})
	}
	return schedule
}

func highlights(acts []models.Activity) []string {
	out := make([]string, 0, len(acts))
	for _, a := range acts {
		if a.SpecificPlace != "" {
			out = append(out, a.SpecificPlace)
		}
	}
	return out
}

// insightsByType splits insights into their kinds, keeping order.
func insightsByType(insights []models.LocalInsight) map[string][]models.LocalInsight {
	out := make(map[string][]models.LocalInsight)
	for _, in := range insights {
		out[in.Type] = append(out[in.Type], in)
	}
	return out
}
