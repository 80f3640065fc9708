package model

// NotificationBatch is the body of one webhook delivery from the mail
// provider. Ephemeral, never persisted.
type NotificationBatch struct {
	Value []ChangeNotification `json:"value"`
}

// ChangeNotification is one change event inside a batch. Resource is a
// path of the form users/{mailbox}/mailFolders/inbox/messages/{id}.
type ChangeNotification struct {
	SubscriptionID string               `json:"subscriptionId"`
	ChangeType     string               `json:"changeType"`
	ClientState    string               `json:"clientState"`
	Resource       string               `json:"resource"`
	ResourceData   *NotificationMessage `json:"resourceData,omitempty"`
}

// NotificationMessage carries the resource id when the provider includes
// resource data inline.
type NotificationMessage struct {
	ID string `json:"id"`
}

// Subscription mirrors a change-notification subscription as reported by
// the provider. The provider is the only durable home of this state.
type Subscription struct {
	ID                 string `json:"id"`
	Resource           string `json:"resource"`
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}
