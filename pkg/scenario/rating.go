package scenario

const contentRatingG = `Write content suitable for young children. Avoid violence, romance and scary elements. Use simple language and positive messages.`
const contentRatingPG = `Write content suitable for children and families. Mild peril or tension is okay, but avoid strong language, explicit violence, or dark themes.`
const contentRatingPG13 = `Write content appropriate for teenagers. You may include mild swearing, romantic tension, action scenes, and complex emotional themes, but avoid explicit adult situations, graphic violence, or drug use.`
const contentRatingR = `Write with full freedom for adult audiences. All content should progress the story.`

// ContentRatingPrompt returns the narrator guidance for a rating.
// Unknown ratings fall back to PG13.
func ContentRatingPrompt(rating string) string {
	switch rating {
	case RatingG:
		return contentRatingG
	case RatingPG:
		return contentRatingPG
	case RatingR:
		return contentRatingR
	default:
		return contentRatingPG13
	}
}
