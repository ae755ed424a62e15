package realtime

// StreamNotifications carries notification.* events for the connected user.
const StreamNotifications = "notifications"
