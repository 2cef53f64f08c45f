package flow

import "github.com/calmhq/calmbot/internal/models"

// Fixed conversational copy sent by command and callback handlers.
const (
	// GreetingMessage is sent in reply to /start, with the mood keyboard.
	GreetingMessage = "Hi! I’m CalmBot, your emotional support companion. Share how you feel, pick an emotion below, or use /chat to talk freely!"

	// ChatIntroMessage is sent in reply to /chat.
	ChatIntroMessage = "Let’s chat! I’m here to listen and support you. What’s on your mind?"

	// ChatAfterMoodMessage is sent when the user chooses to chat after
	// picking a mood.
	ChatAfterMoodMessage = "Great, let’s dive deeper! What’s on your mind about how you’re feeling?"

	// ChangeResponseMessage is sent with the mood keyboard when the user
	// asks to pick a different mood.
	ChangeResponseMessage = "No worries! How are you feeling now?"

	// UnknownCommandMessage is sent for commands the bot does not know.
	UnknownCommandMessage = "I don’t know that command. Use /start to begin or /chat to talk freely."
)

// DefaultMoodReply answers mood selections that are not in MoodReplies.
const DefaultMoodReply = "I'm here to listen. Try /chat to talk freely."

// MoodReplies maps each mood button to its fixed supportive reply.
var MoodReplies = map[models.Mood]string{
	models.MoodHappiness: "I feel the warmth of your happiness, like sunlight breaking through clouds! You're stronger than any scars you carry. To keep this joy flowing, try journaling what sparked this feeling today. Want to share more? Use /chat to dive deeper!",
	models.MoodSadness:   "I hear the weight of your sadness, and it’s okay to feel this way sometimes. You’re not alone, and your heart is resilient. Try a deep breathing exercise: inhale for 4, hold for 4, exhale for 4. Want to talk more? Use /chat to explore what’s on your mind.",
	models.MoodAnger:     "Your anger is like a storm, powerful but temporary. You’re stronger than this moment. Try writing down what’s fueling it to let it go. Want to work through this together? Use /chat to share more and find calm.",
	models.MoodAnxiety:   "Anxiety can feel like a tight knot, but you’re stronger than the worries you carry. Try a quick grounding exercise: name 5 things you see around you. I’m here for you. Want to talk it out? Use /chat to share what’s weighing on you.",
}

// MoodReply returns the fixed reply for a mood selection.
func MoodReply(mood models.Mood) string {
	if reply, ok := MoodReplies[mood]; ok {
		return reply
	}
	return DefaultMoodReply
}
