package outbox

const notificationCreatedSchema = `{
  "type": "object",
  "title": "NotificationCreated",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "type": {"type": "string", "enum": ["level_up", "achievement", "goal_completed"]},
    "title": {"type": "string"},
    "message": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "type", "title", "message", "created_at"],
  "additionalProperties": false
}`
