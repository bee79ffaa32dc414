package itinerary

import (
	"fmt"

	"druktour/internal/models"
)

func threeDays() []models.ItineraryDay {
	return []models.ItineraryDay{
		{ID: "day-1", DayNumber: 1, Title: "Arrival in Paro", Description: "Transfer to hotel", Activities: []string{"Airport pickup", "Paro Rinpung Dzong"}, Accommodation: "Hotel Olathang", Meals: []string{"Dinner"}},
		{ID: "day-2", DayNumber: 2, Title: "Temple Visit", Description: "Hike to Taktsang", Activities: []string{"Tiger's Nest hike"}, Meals: []string{"Breakfast", "Lunch", "Dinner"}},
		{ID: "day-3", DayNumber: 3, Title: "Thimphu", Description: "Drive to the capital", Activities: []string{}, Meals: []string{"Breakfast"}},
	}
}

func fiveDays() []models.ItineraryDay {
	days := threeDays()
	for n := 4; n <= 5; n++ {
		days = append(days, models.ItineraryDay{
			ID:        fmt.Sprintf("day-%d", n),
			DayNumber: n,
			Title:     fmt.Sprintf("Day %d excursion", n),
			Meals:     []string{"Breakfast"},
		})
	}
	return days
}
