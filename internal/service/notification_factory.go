package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/social-go-api/internal/models"
)

const (
	defaultNotificationExpiryDays = 7
	maxNotificationExpiryDays     = 365
)

type metaValue func(meta models.Metadata) string

type actionTemplate struct {
	label  metaValue
	action string
	value  metaValue
	style  string
}

type notificationTemplate struct {
	category models.NotificationCategory
	priority models.NotificationPriority
	icon     string
	title    string
	// senderOptional templates may be built without a resolved sender.
	senderOptional bool
	message        func(sender *models.UserSnapshot, meta models.Metadata) string
	link           metaValue
	image          metaValue
	actions        []actionTemplate
}

func static(value string) metaValue {
	return func(models.Metadata) string { return value }
}

func field(key string) metaValue {
	return func(meta models.Metadata) string { return meta.String(key) }
}

// pattern substitutes {key} placeholders with metadata values.
func pattern(format string) metaValue {
	return func(meta models.Metadata) string {
		var out strings.Builder
		rest := format
		for {
			start := strings.IndexByte(rest, '{')
			if start < 0 {
				break
			}
			end := strings.IndexByte(rest[start:], '}')
			if end < 0 {
				break
			}
			out.WriteString(rest[:start])
			out.WriteString(meta.String(rest[start+1 : start+end]))
			rest = rest[start+end+1:]
		}
		out.WriteString(rest)
		return out.String()
	}
}

func fromMeta(value metaValue) func(*models.UserSnapshot, models.Metadata) string {
	return func(_ *models.UserSnapshot, meta models.Metadata) string { return value(meta) }
}

func displayName(sender *models.UserSnapshot) string {
	if sender == nil {
		return "Someone"
	}
	first := sender.FirstName
	if first == "" {
		first = "Someone"
	}
	return strings.TrimSpace(first + " " + sender.LastName)
}

var notificationTemplates = map[string]notificationTemplate{
	"like": {
		category: models.CategorySocial,
		priority: models.PriorityLow,
		icon:     "❤️",
		message: func(sender *models.UserSnapshot, meta models.Metadata) string {
			postType := meta.String("postType")
			if postType == "" {
				postType = "post"
			}
			return fmt.Sprintf("%s liked your %s", displayName(sender), postType)
		},
		link: pattern("/post/{postId}"),
	},
	"comment": {
		category: models.CategorySocial,
		priority: models.PriorityMedium,
		icon:     "💬",
		message: func(sender *models.UserSnapshot, meta models.Metadata) string {
			if preview := meta.String("commentPreview"); preview != "" {
				return fmt.Sprintf("%s commented: \"%s\"", displayName(sender), preview)
			}
			return displayName(sender) + " commented"
		},
		link: pattern("/post/{postId}"),
	},
	"reply": {
		category: models.CategorySocial,
		priority: models.PriorityMedium,
		icon:     "↩️",
		message: func(sender *models.UserSnapshot, _ models.Metadata) string {
			return displayName(sender) + " replied to your comment"
		},
		link: pattern("/post/{postId}"),
	},
	"follow": {
		category: models.CategorySocial,
		priority: models.PriorityMedium,
		icon:     "👤",
		message: func(sender *models.UserSnapshot, _ models.Metadata) string {
			return displayName(sender) + " started following you"
		},
		link: pattern("/profile/{userId}"),
		actions: []actionTemplate{
			{label: static("Follow Back"), action: "api_call", value: pattern("/users/{userId}/follow"), style: "primary"},
		},
	},
	"login_alert": {
		category:       models.CategorySecurity,
		priority:       models.PriorityHigh,
		icon:           "🔐",
		title:          "New Login Detected",
		senderOptional: true,
		message:        fromMeta(pattern("New login from {device} in {location}")),
		actions: []actionTemplate{
			{label: static("This was me"), action: "api_call", value: pattern("/security/confirm-login/{loginId}"), style: "primary"},
			{label: static("Not me - Secure Account"), action: "navigate", value: static("/settings/security"), style: "danger"},
		},
	},
	"password_changed": {
		category:       models.CategorySecurity,
		priority:       models.PriorityHigh,
		icon:           "🔒",
		title:          "Password Changed",
		senderOptional: true,
		message:        fromMeta(static("Your password was successfully changed")),
		actions: []actionTemplate{
			{label: static("I didn't do this"), action: "navigate", value: static("/settings/security"), style: "danger"},
		},
	},
	"suspicious_activity": {
		category:       models.CategorySecurity,
		priority:       models.PriorityUrgent,
		icon:           "⚠️",
		title:          "Suspicious Activity Detected",
		senderOptional: true,
		message:        fromMeta(field("description")),
		actions: []actionTemplate{
			{label: static("Review Activity"), action: "navigate", value: static("/settings/security/activity"), style: "danger"},
		},
	},
	"friend_suggestion": {
		category:       models.CategorySuggestion,
		priority:       models.PriorityLow,
		icon:           "👥",
		title:          "People You May Know",
		senderOptional: true,
		message:        fromMeta(pattern("{mutualFriends} mutual friends with {suggestedUser}")),
		link:           pattern("/profile/{userId}"),
		image:          field("userImage"),
		actions: []actionTemplate{
			{label: static("View Profile"), action: "navigate", value: pattern("/profile/{userId}"), style: "primary"},
			{label: static("Dismiss"), action: "dismiss", style: "secondary"},
		},
	},
	"content_recommendation": {
		category:       models.CategorySuggestion,
		priority:       models.PriorityLow,
		icon:           "✨",
		title:          "Recommended for You",
		senderOptional: true,
		message:        fromMeta(pattern("Check out posts about {topic}")),
		link:           pattern("/explore/{topic}"),
	},
	"sponsored_content": {
		category:       models.CategoryPromotion,
		priority:       models.PriorityLow,
		icon:           "📢",
		title:          "Sponsored",
		senderOptional: true,
		message:        fromMeta(field("adContent")),
		image:          field("adImage"),
		link:           field("adLink"),
		actions: []actionTemplate{
			{
				label: func(meta models.Metadata) string {
					if cta := meta.String("cta"); cta != "" {
						return cta
					}
					return "Learn More"
				},
				action: "navigate",
				value:  field("adLink"),
				style:  "primary",
			},
		},
	},
	"system_update": {
		category:       models.CategorySystem,
		priority:       models.PriorityMedium,
		icon:           "🔔",
		title:          "System Update",
		senderOptional: true,
		message:        fromMeta(field("updateMessage")),
		actions: []actionTemplate{
			{label: static("View Details"), action: "navigate", value: static("/updates"), style: "primary"},
		},
	},
	"maintenance": {
		category:       models.CategorySystem,
		priority:       models.PriorityHigh,
		icon:           "🔧",
		title:          "Scheduled Maintenance",
		senderOptional: true,
		message:        fromMeta(pattern("Maintenance scheduled for {scheduledTime}")),
	},
	"milestone": {
		category:       models.CategoryAchievement,
		priority:       models.PriorityMedium,
		icon:           "🎉",
		title:          "Milestone Achieved!",
		senderOptional: true,
		message:        fromMeta(field("achievement")),
		image:          field("badgeImage"),
	},
	"group_invite": {
		category: models.CategoryGroup,
		priority: models.PriorityMedium,
		icon:     "👥",
		message: func(sender *models.UserSnapshot, meta models.Metadata) string {
			return fmt.Sprintf("%s invited you to join \"%s\"", displayName(sender), meta.String("groupName"))
		},
		link: pattern("/group/{groupId}"),
		actions: []actionTemplate{
			{label: static("Accept"), action: "api_call", value: pattern("/groups/{groupId}/accept-invite"), style: "primary"},
			{label: static("Decline"), action: "api_call", value: pattern("/groups/{groupId}/decline-invite"), style: "secondary"},
		},
	},
	"message": {
		category: models.CategoryMessage,
		priority: models.PriorityMedium,
		icon:     "📩",
		message: func(sender *models.UserSnapshot, meta models.Metadata) string {
			if preview := meta.String("messagePreview"); preview != "" {
				return fmt.Sprintf("%s sent you a message: \"%s\"", displayName(sender), preview)
			}
			return displayName(sender) + " sent you a message"
		},
		link: pattern("/messages/{conversationId}"),
	},
	"group_message": {
		category: models.CategoryGroup,
		priority: models.PriorityLow,
		icon:     "💬",
		message: func(sender *models.UserSnapshot, meta models.Metadata) string {
			return fmt.Sprintf("%s posted in \"%s\"", displayName(sender), meta.String("groupName"))
		},
		link: pattern("/group/{groupId}"),
	},
}

// NotificationTypes lists the registered template keys in sorted order.
func NotificationTypes() []string {
	types := make([]string, 0, len(notificationTemplates))
	for key := range notificationTemplates {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

// BuildNotification renders a notification for recipientID from the template
// registered under notificationType. It performs no I/O: sender must already
// be resolved, and the result only depends on its inputs and now.
func BuildNotification(notificationType string, sender *models.UserSnapshot, recipientID string, meta models.Metadata, now time.Time) (models.Notification, error) {
	tmpl, ok := notificationTemplates[notificationType]
	if !ok {
		return models.Notification{}, fmt.Errorf("%w: %s", ErrUnknownNotificationType, notificationType)
	}

	if sender == nil && !tmpl.senderOptional {
		return models.Notification{}, fmt.Errorf("%w: %s requires a sender", ErrInvalidSender, notificationType)
	}
	if sender != nil && (strings.TrimSpace(sender.FirstName) == "" || strings.TrimSpace(sender.LastName) == "") {
		return models.Notification{}, fmt.Errorf("%w: sender must have first and last name", ErrInvalidSender)
	}
	if strings.TrimSpace(recipientID) == "" {
		return models.Notification{}, fmt.Errorf("%w: recipient is required", ErrValidation)
	}

	if meta == nil {
		meta = models.Metadata{}
	}

	message := strings.TrimSpace(tmpl.message(sender, meta))
	if message == "" {
		return models.Notification{}, fmt.Errorf("%w: %s rendered an empty message", ErrValidation, notificationType)
	}

	at := now.UTC()
	notification := models.Notification{
		RecipientID:  recipientID,
		Category:     tmpl.category,
		Type:         notificationType,
		Priority:     tmpl.priority,
		PriorityRank: tmpl.priority.Rank(),
		Title:        tmpl.title,
		Message:      message,
		Icon:         tmpl.icon,
		Metadata:     meta,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if sender != nil {
		senderID := sender.ID
		notification.SenderID = &senderID
	}
	if tmpl.link != nil {
		notification.Link = tmpl.link(meta)
	}
	if tmpl.image != nil {
		notification.Image = tmpl.image(meta)
	}

	for _, action := range tmpl.actions {
		rendered := models.NotificationAction{
			Label:  action.label(meta),
			Action: action.action,
			Style:  action.style,
		}
		if action.value != nil {
			rendered.Value = action.value(meta)
		}
		notification.Actions = append(notification.Actions, rendered)
	}

	notification.RelatedPost = optionalString(meta.String("postId"))
	notification.RelatedComment = optionalString(meta.String("commentId"))
	notification.RelatedUser = optionalString(meta.String("userId"))

	if tmpl.category == models.CategoryPromotion || tmpl.category == models.CategorySuggestion {
		days := meta.Int("expiresInDays", defaultNotificationExpiryDays)
		if days <= 0 {
			days = defaultNotificationExpiryDays
		}
		if days > maxNotificationExpiryDays {
			days = maxNotificationExpiryDays
		}
		expires := at.Add(time.Duration(days) * 24 * time.Hour)
		notification.ExpiresAt = &expires
	}

	return notification, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
